package logging

import (
	"context"

	"go.viam.com/utils"
)

type debugKey struct{}

// EnableDebugMode returns a context that forces CDebugw calls to log. The tag identifies the
// request in the log output; an empty tag is replaced by a random one.
func EnableDebugMode(ctx context.Context, tag string) context.Context {
	if tag == "" {
		tag = utils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, debugKey{}, tag)
}

// IsDebugMode reports whether ctx was returned by EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return DebugTag(ctx) != ""
}

// DebugTag returns the tag given to EnableDebugMode, or "".
func DebugTag(ctx context.Context) string {
	tag, _ := ctx.Value(debugKey{}).(string)
	return tag
}
