/*
Package iso7816 implements the APDU building blocks shared by every transport in this module.

It covers the parts of ISO/IEC 7816-3 and 7816-4 a host needs when it only moves bytes to a
device and back: encoding and parsing of Command APDUs, splitting Response APDUs into data and
Status Word, and a Client that drives the transport-level status words on top of any Exchanger.

# Fundamentals

The communication with a device is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Device processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Usage Example: Following a chained response

	client := iso7816.NewClient(tr) // tr is any Exchanger, e.g. a U2F or PC/SC transport

	cmd, err := iso7816.ParseCommand(tlv.Hex("00 A4 04 00 07 A0000000041010"))
	if err != nil {
	    log.Fatal(err)
	}

	trace, err := client.Send(ctx, cmd)
	if err != nil {
	    log.Fatal(err)
	}

	if trace.IsSuccess() {
	    fmt.Printf("Response: %X\n", trace.Data())
	}
*/
package iso7816
