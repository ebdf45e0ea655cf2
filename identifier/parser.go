// Package identifier parses a registry locator string into an ordered
// channel stack, grounded on
// original_source/registry/registry.c's registry_open. The original's
// manual delimiter-scanning over a mutable C string is replaced with
// strings.Split over the '|' delimiter and a switch on each segment's
// scheme prefix.
package identifier

import (
	"strings"

	"krypt.co/registry/channel"
	"krypt.co/registry/errcode"
)

const (
	fileScheme = "file://"
	hmacScheme = "hmac://"
)

// DispatcherFactory builds the Dispatcher a Loopback Server Channel calls
// into, given the path parsed from a file:// segment. registry.Open supplies
// dispatch.Open as this factory; identifier stays independent of the
// storage/dispatch stack so it can be tested with a fake factory.
type DispatcherFactory func(path string) (channel.Dispatcher, error)

// Parse builds the client-facing channel stack described by id. id must
// start with a file:// segment, optionally followed by one or more
// '|'-separated hmac:// segments.
func Parse(id string, newDispatcher DispatcherFactory) (channel.Channel, error) {
	if id == "" {
		return nil, unknownIdentifier("identifier: empty")
	}

	segments := strings.Split(id, "|")
	if len(segments) == 0 || segments[0] == "" {
		return nil, unknownIdentifier("identifier: empty first segment")
	}

	first := segments[0]
	if !strings.HasPrefix(first, fileScheme) {
		return nil, unknownIdentifier("identifier: must start with file://")
	}
	path := strings.TrimPrefix(first, fileScheme)
	if path == "" {
		return nil, unknownIdentifier("identifier: empty file path")
	}

	dispatcher, err := newDispatcher(path)
	if err != nil {
		return nil, err
	}

	var top channel.Channel = channel.NewLoopback(dispatcher)

	hmacSegments := segments[1:]
	if len(hmacSegments) == 0 {
		return top, nil
	}

	for _, seg := range hmacSegments {
		if seg == "" {
			return nil, unknownIdentifier("identifier: empty segment")
		}
		if !strings.HasPrefix(seg, hmacScheme) {
			return nil, unknownIdentifier("identifier: unrecognized scheme, hmac:// required after file://")
		}
	}

	conn := channel.NewConnector(top)
	var chain channel.Channel = conn
	for _, seg := range hmacSegments {
		key := strings.TrimPrefix(seg, hmacScheme)
		h := channel.NewHMAC(chain)
		if key != "" {
			h.SetKey([]byte(key))
		}
		chain = h
	}
	conn.SetEndpoint(chain)

	return chain, nil
}

func unknownIdentifier(msg string) error {
	return errcode.New(errcode.REGISTRY_UNKNOWN_IDENTIFIER, errcode.KindArgument, msg)
}
