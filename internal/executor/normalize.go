package executor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
)

// Normalize converts a warehouse scalar into a uniformly serializable value:
// dates and times become ISO-8601 strings, NUMERIC/BIGNUMERIC become float64
// (precision may be lost), BYTES become base64, and anything else without a
// natural JSON form becomes its string representation.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case civil.Date:
		return x.String()
	case civil.DateTime:
		return x.String()
	case civil.Time:
		return x.String()
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = Normalize(x[i])
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// Format renders a value as table cell text, normalizing it first.
func Format(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
