// Package smbctx provides connection contexts and operation dispatch for
// SMB/CIFS network shares on top of a pluggable client engine.
//
// # Overview
//
// A Context is one authenticated connection scope. It owns a copy of the
// caller's domain, username and password, the engine's connection object,
// and the table of operation entry points the engine bound to that
// connection. Every filesystem-style call (Open, Read, Close, Opendir,
// Closedir, ReaddirPlus2, Stat) is forwarded through that table unchanged.
//
// The engine negotiates sessions itself and asks for credentials through an
// AuthFunc the Context registers at creation time. The callback copies the
// username and password into the engine's fixed-size buffers, truncating and
// NUL-terminating them. The workgroup buffer is left untouched.
//
// # Basic Usage
//
//	ctx, err := smbctx.Create(smbctx.NewSMB2Engine(), "WORKGROUP", "jdoe", "secret123", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Destroy(false)
//
//	f, err := ctx.Open("smb://fileserver/shared/report.txt", os.O_RDONLY, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close(f)
//
//	buf := make([]byte, 4096)
//	n, err := ctx.Read(f, buf)
//
// # FileSystem
//
// FileSystem wraps a Context as a read-only io/fs view of one share:
//
//	fsys, err := smbctx.New(&smbctx.Config{
//	    Server:   "fileserver.example.com",
//	    Share:    "shared",
//	    Username: "jdoe",
//	    Password: "secret123",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fsys.Close()
//
//	entries, err := fsys.ReadDir(".")
//
// # Fault Injection
//
// Create, Destroy and ReaddirPlus2 take an explicit injectFault flag that
// forces a deterministic ENOMEM or EBADF failure without involving the
// engine. A FileSystem takes one flag per path from Config:
// InjectCreateFault, InjectDestroyFault and InjectReaddirFault.
//
// # Errors
//
// Results of dispatched operations are returned exactly as the engine
// reported them. Errors produced by this package are *ContextError values
// wrapping a syscall.Errno, so errors.Is(err, syscall.EBADF) works for both.
//
// # Engines
//
// SMB2Engine is backed by github.com/hirochachacha/go-smb2 and is pure Go.
// MockEngine is an in-memory engine for tests.
package smbctx
