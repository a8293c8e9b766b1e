package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// PayloadVersion is the payload schema version written by Encode.
const PayloadVersion = 1

var (
	// ErrUnknownCommandType indicates a type identifier with no constructor.
	ErrUnknownCommandType = errors.New("unknown command type")
	// ErrLedgerDecode indicates a ledger payload that cannot be rebuilt.
	ErrLedgerDecode = errors.New("ledger decode")
)

// Constructor returns a zero action ready to receive decoded data.
type Constructor func() Action

// Registry maps type identifiers to constructors.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor. Identifiers must be unique and must match
// the Type of the action the constructor builds.
func (r *Registry) Register(id string, ctor Constructor) error {
	if r == nil {
		return errors.New("registry is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("command type is required")
	}
	if ctor == nil {
		return fmt.Errorf("command type %s: constructor is required", id)
	}
	if got := ctor().Type(); got != id {
		return fmt.Errorf("command type %s: constructor builds %s", id, got)
	}
	if r.constructors == nil {
		r.constructors = make(map[string]Constructor)
	}
	if _, exists := r.constructors[id]; exists {
		return fmt.Errorf("command type already registered: %s", id)
	}
	r.constructors[id] = ctor
	return nil
}

// Types lists registered identifiers in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Construct rebuilds an executed command of type id from its data object.
func (r *Registry) Construct(id string, data []byte) (*Command, error) {
	ctor, ok := r.constructors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommandType, id)
	}
	action := ctor()
	if err := decodeStrict(data, action); err != nil {
		return nil, fmt.Errorf("%w: %s data: %w", ErrLedgerDecode, id, err)
	}
	return restored(action), nil
}

type payload struct {
	Type    string          `json:"@Type"`
	Version int             `json:"@Version"`
	Data    json.RawMessage `json:"data"`
}

// Encode serializes the command's parameters and captured state.
func (c *Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c.action)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Type(), err)
	}
	return json.Marshal(payload{Type: c.Type(), Version: PayloadVersion, Data: data})
}

// Decode rebuilds a command from a ledger payload. Every failure wraps
// ErrLedgerDecode; unregistered types also wrap ErrUnknownCommandType.
func (r *Registry) Decode(raw []byte) (*Command, error) {
	var doc payload
	if err := decodeStrict(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerDecode, err)
	}
	if doc.Type == "" {
		return nil, fmt.Errorf("%w: missing @Type", ErrLedgerDecode)
	}
	if doc.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: %s: unsupported @Version %d", ErrLedgerDecode, doc.Type, doc.Version)
	}
	if len(doc.Data) == 0 || bytes.Equal(bytes.TrimSpace(doc.Data), []byte("null")) {
		return nil, fmt.Errorf("%w: %s: missing data", ErrLedgerDecode, doc.Type)
	}
	cmd, err := r.Construct(doc.Type, doc.Data)
	if errors.Is(err, ErrUnknownCommandType) {
		return nil, fmt.Errorf("%w: %w", ErrLedgerDecode, err)
	}
	return cmd, err
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after document")
	}
	return nil
}

// DefaultRegistry returns a registry holding every dataset command.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, ctor := range variants {
		if err := r.Register(ctor().Type(), ctor); err != nil {
			panic(err)
		}
	}
	return r
}

var variants = []Constructor{
	func() Action { return &AddCaptions{} },
	func() Action { return &RemoveCaptions{} },
	func() Action { return &ModifyCaption{} },
	func() Action { return &AddCategory{} },
	func() Action { return &RemoveCategory{} },
	func() Action { return &ModifyCategory{} },
	func() Action { return &AddTags{} },
	func() Action { return &RemoveTags{} },
	func() Action { return &AddImages{} },
	func() Action { return &RemoveImages{} },
	func() Action { return &SetMetadata{} },
	func() Action { return &AssignCaptions{} },
	func() Action { return &UnassignCaptions{} },
	func() Action { return &CaptionImages{} },
	func() Action { return &UncaptionImages{} },
	func() Action { return &SelectImages{} },
	func() Action { return &LoadDataset{} },
	func() Action { return &ExportDataset{} },
	func() Action { return &ValidateDataset{} },
}
