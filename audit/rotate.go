package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// FileStore is the on-disk Store backing Log: newline-separated JSON, one
// record per line, in a numbered sequence of files. The
// highest-numbered, uncompressed file is always the active writer;
// rotated-away files are compressed with zstd to save space and kept up
// to the configured retention count.
type FileStore struct {
	dir       string
	activeNum int
	retain    int
}

// NewFileStore opens (or creates) a FileStore rooted at dir, discovering
// the highest existing file number to resume as the active writer.
func NewFileStore(dir string, retain int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fs := &FileStore{dir: dir, retain: retain}
	num, err := fs.highestActiveNum()
	if err != nil {
		return nil, err
	}
	fs.activeNum = num
	return fs, nil
}

func (fs *FileStore) activePath() string {
	return filepath.Join(fs.dir, fmt.Sprintf("audit-%05d.jsonl", fs.activeNum))
}

func (fs *FileStore) highestActiveNum() (int, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return 0, err
	}
	max := 0
	found := false
	for _, e := range entries {
		n, ok := parseActiveName(e.Name())
		if ok {
			found = true
			if n > max {
				max = n
			}
		}
	}
	if !found {
		return 0, nil
	}
	return max, nil
}

func parseActiveName(name string) (int, bool) {
	if !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl") {
		return 0, false
	}
	numStr := strings.TrimSuffix(strings.TrimPrefix(name, "audit-"), ".jsonl")
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (fs *FileStore) Append(r Record) error {
	f, err := os.OpenFile(fs.activePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = f.Write(append(b, '\n'))
	return err
}

// All reads every record across every file (compressed rotated files and
// the active file), in file-number then line order.
func (fs *FileStore) All() ([]Record, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type numbered struct {
		num  int
		name string
	}
	var files []numbered
	for _, e := range entries {
		name := e.Name()
		if n, ok := parseActiveName(name); ok {
			files = append(files, numbered{n, name})
			continue
		}
		if n, ok := parseCompressedName(name); ok {
			files = append(files, numbered{n, name})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	var out []Record
	for _, fi := range files {
		recs, err := fs.readFile(filepath.Join(fs.dir, fi.name))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func parseCompressedName(name string) (int, bool) {
	if !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl.zst") {
		return 0, false
	}
	numStr := strings.TrimSuffix(strings.TrimPrefix(name, "audit-"), ".jsonl.zst")
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (fs *FileStore) readFile(path string) ([]Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, err
		}
	}

	var out []Record
	sc := bufio.NewScanner(strings.NewReader(string(raw)))
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("malformed audit record in %s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

// Rotate compresses the current active file and starts a new one whose
// first record (written by the caller via Append immediately after) will
// carry lastHash as its prev_hash, chaining the new file to the old one.
func (fs *FileStore) Rotate(lastHash string) error {
	oldPath := fs.activePath()
	if _, err := os.Stat(oldPath); err == nil {
		if err := fs.compress(oldPath); err != nil {
			return err
		}
	}
	fs.activeNum++
	fs.enforceRetention()
	return nil
}

func (fs *FileStore) compress(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)
	if err := os.WriteFile(path+".zst", compressed, 0o644); err != nil {
		return err
	}
	return os.Remove(path)
}

func (fs *FileStore) enforceRetention() {
	if fs.retain <= 0 {
		return
	}
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return
	}
	var nums []int
	for _, e := range entries {
		if n, ok := parseCompressedName(e.Name()); ok {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	if len(nums) <= fs.retain {
		return
	}
	for _, n := range nums[:len(nums)-fs.retain] {
		_ = os.Remove(filepath.Join(fs.dir, fmt.Sprintf("audit-%05d.jsonl.zst", n)))
	}
}

func (fs *FileStore) SizeBytes() (int64, error) {
	info, err := os.Stat(fs.activePath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
