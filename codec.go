package dsig

// buildSignedBlock builds the PKCS#1 v1.5-style padded block (or, if
// doPad is false, the bare ASN.1 DigestInfo) that gets RSA-operated on.
// modulusBitSize is the caller's key size in bits; the orchestrator
// passes n+1 to compensate for the implicit leading zero bit a raw
// modular exponentiation image omits.
func buildSignedBlock(digest []byte, modulusBitSize int, doPad bool, hashName string) ([]byte, error) {
	prefix, ok := digestInfoPrefix[hashName]
	if !ok {
		return nil, newErr(UnknownTransform, "no DigestInfo prefix for hash %q", hashName)
	}

	digestInfo := make([]byte, 0, len(prefix)+len(digest))
	digestInfo = append(digestInfo, prefix...)
	digestInfo = append(digestInfo, digest...)

	if !doPad {
		return digestInfo, nil
	}

	paddedSize := modulusBitSize/8 - 1
	padSize := paddedSize - len(digestInfo) - 2
	if padSize < 8 {
		return nil, newErr(KeyTooSmall, "modulus too small for padded DigestInfo (pad_size=%d)", padSize)
	}

	block := make([]byte, 0, 1+padSize+1+len(digestInfo))
	block = append(block, 0x01)
	for i := 0; i < padSize; i++ {
		block = append(block, 0xFF)
	}
	block = append(block, 0x00)
	block = append(block, digestInfo...)

	return block, nil
}
