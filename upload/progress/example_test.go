package progress_test

import (
	"fmt"
	"time"

	"github.com/shotstash/go-uploadutils/upload/progress"
)

func ExampleThrottler() {
	throttler := progress.NewThrottler(func(s progress.State) {
		fmt.Printf("%d/%d bytes (%d%%)\n", s.BytesTransferred, s.TotalBytes, s.Percentage)
	}, 200, time.Hour)

	throttler.Publish(50)
	// inside the throttle window, dropped
	throttler.Publish(60)
	throttler.Finish()
	// Output: 50/200 bytes (25%)
	// 200/200 bytes (100%)
}
