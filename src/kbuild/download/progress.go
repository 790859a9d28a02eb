package download

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BarProgress renders download progress as a terminal progress bar on w.
// The bar is created on the first update, once the total size is known.
func BarProgress(w io.Writer, description string) ProgressCallback {
	var bar *progressbar.ProgressBar

	return func(bytesReceived, totalBytes int64) {
		if bar == nil {
			max := totalBytes
			if max <= 0 {
				max = -1 // spinner when the length is unknown
			}
			bar = progressbar.NewOptions64(max,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set64(bytesReceived)
		if totalBytes > 0 && bytesReceived >= totalBytes {
			_ = bar.Finish()
		}
	}
}

// LogProgress reports download progress through the package logger at most once per interval
func LogProgress(interval time.Duration) ProgressCallback {
	var last time.Time

	return func(bytesReceived, totalBytes int64) {
		done := totalBytes > 0 && bytesReceived >= totalBytes
		if !done && time.Since(last) < interval {
			return
		}
		last = time.Now()

		if totalBytes > 0 {
			log.Info("Downloading toolchain",
				"received", bytesReceived,
				"total", totalBytes,
				"percent", bytesReceived*100/totalBytes)
			return
		}
		log.Info("Downloading toolchain", "received", bytesReceived)
	}
}
