/*
Package u2f carries APDUs inside the U2F signing ceremony.

A U2F sign request has room for one opaque, device-defined blob: the key handle. Devices that
understand this carrier treat the key handle as a command APDU and return their APDU response
inside the signature of the sign result. This package implements both directions:

  - the encode pipeline: APDU → XOR obfuscation with the session scramble key → web-safe
    Base64 → SignRequest (key handle, dummy challenge, "U2F_V2", origin);
  - the decode pipeline: SignResult → web-safe Base64 decode → status word check →
    APDU response (the 5-byte U2F header of user presence and counter removed).

The signing ceremony itself is an external collaborator behind the Signer interface.
Package u2fhid provides a Signer for U2F HID authenticators; CardSigner emulates the carrier
in front of a plain APDU transmitter.

# Usage

	tr := u2f.Open(signer, "https://wallet.example", u2f.WithTimeout(30*time.Second))
	defer tr.Close()

	tr.SetScrambleKey("w0w")

	resp, err := tr.Exchange(ctx, tlv.Hex("E0 01 00 00"), []iso7816.StatusWord{iso7816.SW_NO_ERROR})
*/
package u2f
