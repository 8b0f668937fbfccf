package middleware

import (
	"net/http"

	"github.com/vango-dev/switchyard/pkg/httperr"
	"github.com/vango-dev/switchyard/pkg/routepath"
	"github.com/vango-dev/switchyard/pkg/server"
)

// CanonicalPath returns a pre handler that redirects requests for a
// non-canonical path to its canonical form with 308 Permanent Redirect.
// Double slashes and dot segments are removed, and so is a trailing slash
// unless keepTrailingSlash is set. Paths that cannot be canonicalized are
// rejected with 400 Bad Request.
//
//	srv.Pre(middleware.CanonicalPath(false))
func CanonicalPath(keepTrailingSlash bool) server.Handler {
	return server.Named("canonical-path", func(req *server.Request, res *server.Response, next server.Next) {
		u := req.Raw().URL
		result, err := routepath.CanonicalizePath(u.EscapedPath(), keepTrailingSlash)
		if err != nil {
			next(httperr.Wrap(httperr.KindBadRequest, err, "invalid request path"))
			return
		}
		if !result.Changed {
			next(nil)
			return
		}

		location := result.Path
		if u.RawQuery != "" {
			location += "?" + u.RawQuery
		}
		if err := res.Redirect(http.StatusPermanentRedirect, location); err != nil {
			next(err)
			return
		}
		next(server.Stop)
	})
}
