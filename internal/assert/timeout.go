package assert

import "time"

// timeout is how long asserts wait on chans and blocking calls before failing
// the test.
var timeout = 10 * time.Second
