package dispatch

import (
	"github.com/coroweb/httpcore/core/httpproto"
	"github.com/coroweb/httpcore/core/router"
)

// brotliSupported gates whether the "br" token in Accept-Encoding is
// honored; no handler in cmd/coroserve compresses with brotli yet, so it
// stays false here rather than advertising a capability nothing serves.
const brotliSupported = false

// prepareAcceptEncoding parses Accept-Encoding once, before the handler
// runs, only for routes that declared router.ParseAcceptEncoding, applying
// the accessor selectively rather than unconditionally for every request.
func prepareAcceptEncoding(req *httpproto.Request, flags router.Flags) {
	if flags&router.ParseAcceptEncoding == 0 {
		return
	}
	req.AcceptEncodingFlags(brotliSupported)
}
