package fake

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"
)

func init() {
	// Attribute maps are interface-valued; gob needs the concrete types.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(time.Duration(0))
}

// GobMarshaler is the codec used by the fakes. Production hosts plug in their
// own Marshaler; nothing outside this package assumes gob.
type GobMarshaler struct{}

func (GobMarshaler) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}

func (GobMarshaler) Unmarshal(data []byte, v interface{}) error {
	return errors.WithStack(gob.NewDecoder(bytes.NewReader(data)).Decode(v))
}
