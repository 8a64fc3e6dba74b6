// SPDX-License-Identifier: MPL-2.0

// Package session runs build commands inside an isolated environment.
//
// A Session is started once, used for any number of calls, file transfers
// and globs, and stopped exactly once. ContainerSession keeps a single bash
// process alive inside a build container and talks to it over stdin, so
// argument and environment sizes are not bounded by ARG_MAX. HostSession
// runs commands directly on the build machine in a private working
// directory.
//
// Use With to guarantee that Stop runs on every exit path:
//
//	err := session.With(ctx, s, func(s session.Session) error {
//		_, err := s.Call(ctx, []string{"python", "--version"}, session.CallOptions{})
//		return err
//	})
package session
