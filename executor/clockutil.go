package executor

import "github.com/benbjohnson/clock"

// defaultClock is shared by every executor instance so deadline waits are
// injectable in tests (benbjohnson/clock's mock clock lets tests simulate
// elapsed time instead of actually sleeping for a timeout duration).
var defaultClock clock.Clock = clock.New()
