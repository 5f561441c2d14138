package client

import (
	"strings"

	"ircc/util"
)

// serverTag derives the short label callers group sessions by.  An
// explicit network name wins.  IP literals are returned as-is and a
// bare name is lower-cased.  A dotted hostname loses a leading "irc."
// and its top-level label, so "irc.mock.local" and "Mock.local" both
// become "mock" while "chat.freenode.net" becomes "chat.freenode".
func serverTag(network, server string) string {
	if network != "" {
		return strings.ToLower(network)
	}
	if server == "" {
		return ""
	}
	if util.IsIPLiteral(server) {
		return server
	}
	name := strings.ToLower(strings.TrimSuffix(server, "."))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if rest := strings.TrimPrefix(name, "irc."); rest != "" {
		name = rest
	}
	return name
}
