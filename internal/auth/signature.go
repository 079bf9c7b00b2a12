// Package auth implements handshake credential verification and the
// read-only credential store loaded at startup.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/meshwire/rtms/internal/protocol"
)

// Sign computes the handshake signature: HMAC-SHA256 over
// "clientID,meetingUUID,streamID" keyed with the client secret,
// hex-encoded.
func Sign(clientID, meetingUUID, streamID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s,%s,%s", clientID, meetingUUID, streamID)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature and compares it in constant time.
func Verify(signature, clientID, meetingUUID, streamID, secret string) bool {
	expected := Sign(clientID, meetingUUID, streamID, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// GenerateSRTPKeys produces fresh key material for a handshake
// response, 32 random bytes hex-encoded per media kind.
func GenerateSRTPKeys() protocol.SRTPKeys {
	return protocol.SRTPKeys{
		Audio: randomKey(),
		Video: randomKey(),
		Share: randomKey(),
	}
}

func randomKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
