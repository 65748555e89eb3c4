package relay

import (
	"errors"
	"testing"
)

const minimalSDP = "v=0\r\no=- 4611731400430051336 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func TestPayloadValidator(t *testing.T) {
	valid := []string{
		`{"messageType":"offer","origin":"camera","sdp":"` + jsonEscape(minimalSDP) + `"}`,
		`{"messageType":"answer","origin":"computer","sdp":{"type":"answer","sdp":"` + jsonEscape(minimalSDP) + `"}}`,
		`{"messageType":"ice-candidate","origin":"camera","candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host"}`,
		`{"messageType":"ice-candidate","origin":"computer","candidate":{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}}`,
		`{"messageType":"ice-candidate","origin":"computer","candidate":""}`,
		`{"messageType":"poll","origin":"camera"}`,
	}
	for _, raw := range valid {
		if err := (PayloadValidator{}).Validate(msg(t, raw)); err != nil {
			t.Fatalf("Validate(%s)=%v, want nil", raw, err)
		}
	}

	invalid := []string{
		`{"messageType":"offer","origin":"camera"}`,
		`{"messageType":"offer","origin":"camera","sdp":""}`,
		`{"messageType":"offer","origin":"camera","sdp":"not an sdp"}`,
		`{"messageType":"answer","origin":"computer","sdp":42}`,
		`{"messageType":"ice-candidate","origin":"camera"}`,
		`{"messageType":"ice-candidate","origin":"camera","candidate":"garbage"}`,
		`{"messageType":"ice-candidate","origin":"camera","candidate":7}`,
	}
	for _, raw := range invalid {
		err := (PayloadValidator{}).Validate(msg(t, raw))
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("Validate(%s)=%v, want ErrInvalidPayload", raw, err)
		}
	}
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r':
			out = append(out, '\\', 'r')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
