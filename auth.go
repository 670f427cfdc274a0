package smbctx

import "bytes"

// authenticate is the AuthFunc registered on every connection a Context
// creates. It fills the username and password buffers from the Context's
// credentials.
//
// The workgroup buffer is left as the engine provided it: the stored domain
// is never copied there.
func (c *Context) authenticate(server, share string, workgroup, username, password []byte) {
	creds := c.creds
	if creds == nil {
		return
	}

	copyTerminated(username, creds.username)
	copyTerminated(password, creds.password)
}

// copyTerminated copies src into dst, truncating to len(dst)-1 bytes and
// writing a NUL terminator. Nothing is written when dst is empty.
func copyTerminated(dst, src []byte) int {
	if len(dst) == 0 {
		return 0
	}

	n := copy(dst[:len(dst)-1], src)
	dst[n] = 0

	return n
}

// CString returns the contents of a NUL-terminated buffer. A buffer with no
// terminator is returned whole.
func CString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}
