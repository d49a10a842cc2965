package dmx

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"miren.dev/dmx/dmxerr"
)

// DeferredMode governs how aggressively a codec may leave attribute
// values undecoded at Load time (spec §4.5).
type DeferredMode int

const (
	// DeferredDisabled requires the codec to materialize everything
	// eagerly; used to allow lock-free concurrent read traversal
	// afterward (spec §5).
	DeferredDisabled DeferredMode = iota
	// DeferredAutomatic lets the codec defer large/expensive values at
	// its own discretion.
	DeferredAutomatic
	// DeferredAlways requires the codec to defer whatever it can.
	DeferredAlways
)

func (m DeferredMode) String() string {
	switch m {
	case DeferredDisabled:
		return "disabled"
	case DeferredAutomatic:
		return "automatic"
	case DeferredAlways:
		return "always"
	default:
		return "unknown"
	}
}

// Codec is the contract between Datamodel and a format-specific
// encoder/decoder (spec §4.5). Implementations register themselves under
// an (encoding, version) key via RegisterCodec, typically from an init()
// function in their own package (see codec/keyvalues2 and codec/binary).
type Codec interface {
	// Identity names the codec for error messages and logging, e.g.
	// "keyvalues2/1" or "binary/5".
	Identity() string

	// Encode writes dm to w at the given version of this codec's
	// encoding.
	Encode(dm *Datamodel, w io.Writer, version int) error

	// Decode reads a datamodel from r (with the leading header line
	// already consumed by the core) and returns it, possibly leaving
	// some attributes in a deferred state if mode allows.
	Decode(r io.Reader, mode DeferredMode) (*Datamodel, error)

	// DeferredDecodeAttribute materializes one attribute previously left
	// at offset by Decode. It MUST be safe under concurrent callers at
	// different offsets; the core never calls it concurrently for the
	// same offset, but a correct implementation still guards its own
	// shared reader/stream state with a lock (spec §5 "Codec lock").
	DeferredDecodeAttribute(dm *Datamodel, offset int64) (Value, error)
}

// CodecFactory builds a fresh Codec instance, invoked once per Load/Save
// dispatch. A factory, not a shared singleton, is registered so that two
// concurrent loads never contend over one codec's internal stream state
// unless the codec's own Decode chooses to share one.
type CodecFactory func() Codec

type codecKey struct {
	encoding string
	version  int
}

var (
	registryMu sync.RWMutex
	registry   = map[codecKey]CodecFactory{}
)

// RegisterCodec adds a codec factory under (encoding, version) to the
// process-wide registry (spec §6 "Public API surface"). Re-registering
// the same key replaces the previous factory, which is convenient for
// tests that substitute a fake codec.
func RegisterCodec(encoding string, version int, factory CodecFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[codecKey{encoding, version}] = factory
}

func lookupCodec(encoding string, version int) (Codec, bool) {
	registryMu.RLock()
	f, ok := registry[codecKey{encoding, version}]
	registryMu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// headerPrefix/headerSuffix delimit the ASCII sniff line every supported
// encoding shares (spec §6).
const (
	headerPrefix = "<!-- dmx encoding "
	headerSuffix = " -->"
)

// WriteHeader writes the common envelope line. Codec implementations
// call this before writing their own format-specific body.
func WriteHeader(w io.Writer, encoding string, encodingVersion int, format string, formatVersion int) error {
	_, err := fmt.Fprintf(w, "%s%s %d format %s %d%s\n",
		headerPrefix, encoding, encodingVersion, format, formatVersion, headerSuffix)
	return err
}

// parseHeader parses one sniff line, returning UnsupportedFormat on any
// malformed input.
func parseHeader(line string) (encoding string, encodingVersion int, format string, formatVersion int, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, headerPrefix) || !strings.HasSuffix(line, headerSuffix) {
		return "", 0, "", 0, dmxerr.New(dmxerr.UnsupportedFormat, "malformed dmx header line %q", line)
	}

	body := strings.TrimSuffix(strings.TrimPrefix(line, headerPrefix), headerSuffix)
	fields := strings.Fields(body)
	if len(fields) != 5 || fields[2] != "format" {
		return "", 0, "", 0, dmxerr.New(dmxerr.UnsupportedFormat, "malformed dmx header line %q", line)
	}

	encVersion, err1 := strconv.Atoi(fields[1])
	fmtVersion, err2 := strconv.Atoi(fields[4])
	if err1 != nil || err2 != nil {
		return "", 0, "", 0, dmxerr.New(dmxerr.UnsupportedFormat, "malformed dmx header version numbers in %q", line)
	}

	return fields[0], encVersion, fields[3], fmtVersion, nil
}

// disposedCodec replaces a Datamodel's codec binding after Dispose, so
// that any attribute still carrying a deferred offset fails predictably
// (spec §5: "Further attempts to touch a deferred attribute after
// disposal fail with CodecError (codec disposed)") instead of panicking
// on a nil codec.
type disposedCodec struct{}

func (disposedCodec) Identity() string { return "disposed" }

func (disposedCodec) Encode(*Datamodel, io.Writer, int) error {
	return dmxerr.New(dmxerr.Codec, "codec disposed")
}

func (disposedCodec) Decode(io.Reader, DeferredMode) (*Datamodel, error) {
	return nil, dmxerr.New(dmxerr.Codec, "codec disposed")
}

func (disposedCodec) DeferredDecodeAttribute(*Datamodel, int64) (Value, error) {
	return Value{}, dmxerr.New(dmxerr.Codec, "codec disposed")
}
