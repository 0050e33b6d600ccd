package rsautil

import (
	"fmt"
	"math/big"
)

var MalformedKey = fmt.Errorf("The public key is not valid hexadecimal.")

// Encrypt implements the padding-free RSA scheme the CAS login page
// performs in the browser: the secret's raw bytes are read as one
// big-endian integer and raised to the public exponent modulo the
// public modulus, both of which the server hands out as hex strings.
//
// The result is rendered as a 128 character lowercase hex string,
// zero padded on the left, which is exactly what the login endpoint
// expects in the password field. Anything else gets silently rejected
// as bad credentials rather than a protocol error.
func Encrypt(secret, exponentHex, modulusHex string) (string, error) {
	exponent, ok := new(big.Int).SetString(exponentHex, 16)
	if !ok {
		return "", fmt.Errorf("%w: exponent %q", MalformedKey, exponentHex)
	}
	modulus, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok {
		return "", fmt.Errorf("%w: modulus %q", MalformedKey, modulusHex)
	}

	plain := new(big.Int).SetBytes([]byte(secret))
	cipher := new(big.Int).Exp(plain, exponent, modulus)

	return fmt.Sprintf("%0128x", cipher), nil
}
