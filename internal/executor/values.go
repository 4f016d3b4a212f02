// internal/executor/values.go
package executor

import (
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue converts pgx scan values into JSON-safe equivalents:
// times become RFC 3339 strings, numerics become float64, uuids and raw
// bytes become strings. Everything else passes through.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f8, err := val.Float64Value()
		if err != nil || !f8.Valid {
			return numericString(val)
		}
		return f8.Float64
	case [16]byte:
		return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
			val[0], val[1], val[2], val[3], val[4], val[5], val[6], val[7],
			val[8], val[9], val[10], val[11], val[12], val[13], val[14], val[15])
	case []byte:
		return fmt.Sprintf("\\x%x", val)
	default:
		return v
	}
}

func numericString(n pgtype.Numeric) string {
	if n.NaN {
		return "NaN"
	}
	if n.Int == nil {
		return "0"
	}
	f := new(big.Float).SetInt(n.Int)
	if n.Exp != 0 {
		scale := new(big.Float).SetFloat64(1)
		ten := big.NewFloat(10)
		exp := n.Exp
		if exp < 0 {
			exp = -exp
		}
		for i := int32(0); i < exp; i++ {
			scale.Mul(scale, ten)
		}
		if n.Exp > 0 {
			f.Mul(f, scale)
		} else {
			f.Quo(f, scale)
		}
	}
	return f.Text('f', -1)
}
