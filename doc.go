// Package huffscan measures and applies Huffman coding over fixed-width
// symbols of arbitrary bit width.
//
// A buffer is treated as a big-endian bitstream cut into dataBits-wide
// symbols, which need not be byte-aligned. ScanBuffer counts the symbols
// and keeps the trailing partial symbol:
//
//	sb, err := huffscan.ScanBuffer(data, 12, scan.MethodInteger)
//	if err != nil {
//		return err
//	}
//	cb, err := sb.BuildCodebook()
//	if err != nil {
//		return err
//	}
//	fmt.Println(cb.CompressedBits(), "bits instead of", sb.SymbolBits())
//
// A SegmentedBuffer serializes to a compact container with WriteTo and
// ReadFrom. Encoder goes one step further and produces an Archive holding
// the container plus the coded bitstream; Archive.Decode restores the input
// byte for byte.
package huffscan
