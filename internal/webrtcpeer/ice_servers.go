package webrtcpeer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

var errTURNCredentials = errors.New("--turn-username and --turn-credential are required with --turn-url")

// ICEServerOptions mirrors the handshake command's ICE flags. STUN and TURN
// URLs each become one webrtc.ICEServer; the TURN one carries the credentials.
type ICEServerOptions struct {
	STUNURLs       []string
	TURNURLs       []string
	TURNUsername   string
	TURNCredential string
}

func (o ICEServerOptions) Servers() ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	stunURLs, err := checkURLs(o.STUNURLs, stun.SchemeTypeSTUN, stun.SchemeTypeSTUNS)
	if err != nil {
		return nil, fmt.Errorf("--stun-url: %w", err)
	}
	if len(stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunURLs})
	}

	turnURLs, err := checkURLs(o.TURNURLs, stun.SchemeTypeTURN, stun.SchemeTypeTURNS)
	if err != nil {
		return nil, fmt.Errorf("--turn-url: %w", err)
	}
	if len(turnURLs) > 0 {
		user, cred := strings.TrimSpace(o.TURNUsername), strings.TrimSpace(o.TURNCredential)
		if user == "" || cred == "" {
			return nil, errTURNCredentials
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:           turnURLs,
			Username:       user,
			Credential:     cred,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers, nil
}

// checkURLs drops blank entries and rejects any URL pion cannot parse or
// whose scheme is not one of allowed.
func checkURLs(raw []string, allowed ...stun.SchemeType) ([]string, error) {
	var out []string
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		uri, err := stun.ParseURI(u)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", u, err)
		}
		ok := false
		for _, s := range allowed {
			ok = ok || uri.Scheme == s
		}
		if !ok {
			return nil, fmt.Errorf("%q: unexpected %s scheme", u, uri.Scheme)
		}
		out = append(out, u)
	}
	return out, nil
}
