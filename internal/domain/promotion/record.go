package promotion

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Record is a promotion exactly as stored upstream. Every scalar is kept as
// text so that malformed values surface as validation errors during
// normalization instead of aborting the whole decode.
type Record struct {
	ID                 string
	Name               string
	Type               string
	PromotionType      string
	Value              string
	Products           []string
	ApplicationType    string
	BuyQuantity        string
	BuyQuantitySnake   string
	GetQuantity        string
	GetQuantitySnake   string
	BundleDiscountType string
	Status             string
	StartDate          string
	EndDate            string
}

// Repository returns raw promotion records.
type Repository interface {
	ListRecords(ctx context.Context) ([]Record, error)
}

// DecodeRecords decodes a JSON array of promotion records.
func DecodeRecords(data []byte) ([]Record, error) {
	var out []Record
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		var r Record
		if err := r.Decode(d); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode promotion records")
	}
	return out, nil
}

// DecodeRecord decodes a single JSON object.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := r.Decode(jx.DecodeBytes(data)); err != nil {
		return Record{}, errors.Wrap(err, "decode promotion record")
	}
	return r, nil
}

// Decode reads one record object, accepting both camelCase and snake_case
// field names. Unknown fields are skipped.
func (r *Record) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var (
			dst *string
			err error
		)
		switch key {
		case "id", "promotion_id":
			dst = &r.ID
		case "name", "promotion_name":
			dst = &r.Name
		case "type":
			dst = &r.Type
		case "promotion_type":
			dst = &r.PromotionType
		case "value", "discount_value":
			dst = &r.Value
		case "application_type", "applicationType":
			dst = &r.ApplicationType
		case "buyQuantity":
			dst = &r.BuyQuantity
		case "buy_quantity":
			dst = &r.BuyQuantitySnake
		case "getQuantity":
			dst = &r.GetQuantity
		case "get_quantity":
			dst = &r.GetQuantitySnake
		case "bundle_discount_type", "bundleDiscountType":
			dst = &r.BundleDiscountType
		case "status":
			dst = &r.Status
		case "start_date", "valid_from":
			dst = &r.StartDate
		case "end_date", "valid_until":
			dst = &r.EndDate
		case "products", "product_names":
			if r.Products, err = decodeNames(d); err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			return nil
		default:
			return d.Skip()
		}
		if *dst, err = decodeScalar(d); err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// decodeScalar renders strings, numbers and booleans as text. Null yields
// the empty string.
func decodeScalar(d *jx.Decoder) (string, error) {
	switch t := d.Next(); t {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s", t)
	}
}

// decodeNames accepts either a comma separated string or an array of
// scalars.
func decodeNames(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Array {
		var names []string
		err := d.Arr(func(d *jx.Decoder) error {
			s, err := decodeScalar(d)
			if err != nil {
				return err
			}
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
			return nil
		})
		return names, err
	}
	s, err := decodeScalar(d)
	if err != nil {
		return nil, err
	}
	return splitNames(s), nil
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
