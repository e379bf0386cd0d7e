package u2f

// Version is the protocol tag of every sign request.
const Version = "U2F_V2"

// challengeLen is the size of the dummy challenge. Its content is never used:
// the payload travels in the key handle.
const challengeLen = 33

// dummyChallenge is the web-safe Base64 form of challengeLen zero bytes.
var dummyChallenge = EncodeWebSafe(make([]byte, challengeLen))

// SignRequest is the request handed to the signing ceremony.
type SignRequest struct {
	Version   string `json:"version"`
	KeyHandle string `json:"keyHandle"`
	Challenge string `json:"challenge"`
	AppID     string `json:"appId"`
}

// BuildSignRequest wraps apdu into a sign request: the obfuscated APDU becomes the key handle.
func BuildSignRequest(apdu, scrambleKey []byte, origin string) (*SignRequest, error) {
	if origin == "" {
		return nil, ErrNoOrigin
	}

	keyHandle, err := Obfuscate(apdu, scrambleKey)
	if err != nil {
		return nil, err
	}

	return &SignRequest{
		Version:   Version,
		KeyHandle: EncodeWebSafe(keyHandle),
		Challenge: dummyChallenge,
		AppID:     origin,
	}, nil
}
