//go:build tools

package mobile

// Pins the gomobile binding generator used by `gomobile bind ./mobile`.
import _ "golang.org/x/mobile/bind"
