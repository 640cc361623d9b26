package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/delivery-api/internal/domain/coupon"
)

// record is one parsed line: CODE;KIND;VALUE;VALID_UNTIL[;MAX_USES[;MAX_DISCOUNT]].
type record struct {
	code        string
	rule        coupon.Rule
	validUntil  time.Time
	maxUses     *int
	description string
}

// parseLine returns ok=false for blank lines and # comments.
func parseLine(line string) (rec record, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return record{}, false, nil
	}

	fields := strings.Split(line, ";")
	if len(fields) < 4 || len(fields) > 6 {
		return record{}, false, errors.Errorf("expected 4 to 6 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	rec.code = coupon.NormalizeCode(fields[0])
	if rec.code == "" {
		return record{}, false, errors.New("empty code")
	}

	value, err := decimal.NewFromString(fields[2])
	if err != nil {
		return record{}, false, errors.Wrap(err, "value")
	}

	var maxDiscount *decimal.Decimal
	if len(fields) == 6 && fields[5] != "" {
		d, err := decimal.NewFromString(fields[5])
		if err != nil {
			return record{}, false, errors.Wrap(err, "max discount")
		}
		maxDiscount = &d
	}

	rule, err := coupon.NewRule(coupon.Kind(strings.ToUpper(fields[1])), value, maxDiscount)
	if err != nil {
		return record{}, false, err
	}
	if err := coupon.ValidateRule(rule); err != nil {
		return record{}, false, err
	}
	rec.rule = rule

	rec.validUntil, err = parseValidUntil(fields[3])
	if err != nil {
		return record{}, false, errors.Wrap(err, "valid until")
	}

	if len(fields) >= 5 && fields[4] != "" {
		n, err := strconv.Atoi(fields[4])
		if err != nil || n <= 0 {
			return record{}, false, errors.Errorf("max uses: %q is not a positive integer", fields[4])
		}
		rec.maxUses = &n
	}

	rec.description = describe(rule)
	return rec, true, nil
}

// parseValidUntil accepts RFC 3339 timestamps and bare dates. A bare date
// is valid through the end of that day in UTC.
func parseValidUntil(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return d.AddDate(0, 0, 1).UTC(), nil
}

func describe(r coupon.Rule) string {
	value, maxDiscount := coupon.Value(r)
	switch r.Kind() {
	case coupon.KindPercentage:
		s := value.String() + "% off"
		if maxDiscount != nil {
			s += ", up to " + maxDiscount.StringFixed(2)
		}
		return s
	default:
		return value.StringFixed(2) + " off"
	}
}
