package u2f

// Obfuscate XORs apdu with key, the key repeated as many times as needed.
// The output has the length of apdu. Applying it twice with the same key restores the input.
func Obfuscate(apdu, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrNoScrambleKey
	}

	out := make([]byte, len(apdu))
	for i, b := range apdu {
		out[i] = b ^ key[i%len(key)]
	}
	return out, nil
}
