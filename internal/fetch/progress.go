package fetch

import (
	"context"
	"io"
	"path/filepath"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const progressBarWidth = 64

// progressReader wraps the response body in an mpb progress bar. The
// returned finish func must be called once streaming ends; on failure
// it aborts the bar instead of completing it.
func (f *Fetcher) progressReader(ctx context.Context, body io.Reader, total int64, dest string) (io.Reader, func(ok bool)) {
	p := mpb.NewWithContext(ctx, mpb.WithWidth(progressBarWidth))
	barStyle := mpb.BarStyle().
		Lbound("[").
		Filler("=").
		Tip(">").
		Padding("-").
		Rbound("]")

	name := filepath.Base(dest)
	var bar *mpb.Bar
	if total > 0 {
		bar = p.New(total,
			barStyle,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
				decor.OnComplete(decor.CountersKibiByte("% .2f / % .2f"), "done"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.Name(" | "),
				decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), ""),
			),
		)
	} else {
		bar = p.New(0,
			barStyle,
			mpb.PrependDecorators(
				decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
				decor.CountersKibiByte("% .2f"),
			),
			mpb.AppendDecorators(decor.Name(" (unknown size)")),
		)
	}

	reader := bar.ProxyReader(body)
	finish := func(ok bool) {
		if !ok {
			bar.Abort(true)
		} else if total <= 0 {
			// Unknown-size bars never reach their total on their own.
			bar.SetTotal(-1, true)
		}
		p.Wait()
	}
	return reader, finish
}
