package wire

import (
	"math"

	"krypt.co/registry/buffer"
	"krypt.co/registry/errcode"
)

// Sign/class byte bits for a packed double, mirroring
// original_source/communication/bpack.c's bpack_double encoding exactly: a
// leading classifier byte keeps NaN, infinity and signed zero from ever
// needing a frexp/ldexp decomposition, since none of those classes round-trip
// through one.
const (
	doubleNeg  byte = 0x01
	doubleNaN  byte = 0x02
	doubleInf  byte = 0x04
	doubleZero byte = 0x08
)

// packDouble writes one byte classifying the value (sign, NaN, Inf, zero),
// and, only for ordinary finite non-zero values, a signed 16-bit exponent
// followed by a 64-bit masked mantissa produced by frexp/ldexp decomposition.
func packDouble(buf *buffer.Buffer, v float64, little bool) error {
	// NaN has no sign in this wire format: there is no negative NaN, so the
	// class byte for NaN never carries doubleNeg regardless of v's sign bit.
	if math.IsNaN(v) {
		return writeClassByte(buf, doubleNaN)
	}

	var class byte
	if math.Signbit(v) {
		class |= doubleNeg
	}
	switch {
	case math.IsInf(v, 0):
		class |= doubleInf
		return writeClassByte(buf, class)
	case v == 0:
		class |= doubleZero
		return writeClassByte(buf, class)
	}
	if err := writeClassByte(buf, class); err != nil {
		return err
	}

	mant, exp := math.Frexp(math.Abs(v)) // v == mant * 2^exp, mant in [0.5, 1)
	mantBits := math.Float64bits(mant) & 0x000fffffffffffff
	if err := packUint16(buf, uint16(int16(exp)), little); err != nil {
		return err
	}
	if err := packInt64(buf, int64(mantBits), little); err != nil {
		return err
	}
	return nil
}

// unpackDouble reverses packDouble, reconstructing the mantissa double by
// OR-ing the stored low 52 bits back into the IEEE-754 bit pattern for the
// [0.5, 1) exponent range (0x3fe0000000000000) before reinterpreting it with
// Float64frombits, then undoing the frexp scaling with Ldexp.
func unpackDouble(buf *buffer.Buffer, little bool) (float64, error) {
	class, err := buf.ReadByte()
	if err != nil {
		return 0, errcode.New(errcode.BPACK_READ, errcode.KindFailure, "wire: read failure unpacking double class byte")
	}
	if class&^(doubleNeg|doubleNaN|doubleInf|doubleZero) != 0 {
		return 0, errcode.New(errcode.BUNPACK_INVALID_DATA, errcode.KindProtocol, "wire: invalid double class byte")
	}
	special := class & (doubleNaN | doubleInf | doubleZero)
	if special&(special-1) != 0 {
		// More than one of NaN/Inf/Zero set: not a valid combination.
		return 0, errcode.New(errcode.BUNPACK_INVALID_DATA, errcode.KindProtocol, "wire: invalid double class byte")
	}
	neg := class&doubleNeg != 0

	switch {
	case class&doubleNaN != 0:
		return math.NaN(), nil
	case class&doubleInf != 0:
		return math.Inf(signInt(neg)), nil
	case class&doubleZero != 0:
		return math.Copysign(0, signOf(neg)), nil
	}

	expU, err := unpackUint16(buf, little)
	if err != nil {
		return 0, err
	}
	exp := int(int16(expU))

	mantBitsU, err := unpackInt64(buf, little)
	if err != nil {
		return 0, err
	}
	bits := (uint64(mantBitsU) & 0x000fffffffffffff) | 0x3fe0000000000000
	mant := math.Float64frombits(bits)

	v := math.Ldexp(mant, exp)
	if neg {
		v = -v
	}
	return v, nil
}

func writeClassByte(buf *buffer.Buffer, class byte) error {
	if err := buf.WriteByte(class); err != nil {
		return errcode.New(errcode.BPACK_WRITE, errcode.KindFailure, "wire: write failure packing double class byte")
	}
	return nil
}

func signOf(neg bool) float64 {
	if neg {
		return -1
	}
	return 1
}

func signInt(neg bool) int {
	if neg {
		return -1
	}
	return 1
}
