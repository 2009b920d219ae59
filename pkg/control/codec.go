package control

import (
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the status service.
const CodecName = "cbor"

type cborCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func newCBORCodec() *cborCodec {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err := encOptions.EncMode()
	if err != nil {
		panic("control: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("control: CBOR decoder initialization failed: " + err.Error())
	}
	return &cborCodec{encMode: encMode, decMode: decMode}
}

func (c *cborCodec) Marshal(v interface{}) ([]byte, error) {
	return c.encMode.Marshal(v)
}

func (c *cborCodec) Unmarshal(data []byte, v interface{}) error {
	return c.decMode.Unmarshal(data, v)
}

func (c *cborCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(newCBORCodec())
}
