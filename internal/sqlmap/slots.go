package sqlmap

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/kvp"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
)

// Slot table layout.
const (
	SlotsTable   = "slots"
	SlotsVersion = 1

	slotKeyCol = "obj_guid"
)

var slotColumns = []Column{
	{Name: "id", Type: ColInt, Flags: AutoIncrement},
	{Name: "obj_guid", Type: ColGUID, Size: guid.EncodingLength, Flags: NotNull},
	{Name: "name", Type: ColString, Size: 4096, Flags: NotNull},
	{Name: "slot_type", Type: ColInt, Flags: NotNull},
	{Name: "int64_val", Type: ColInt},
	{Name: "string_val", Type: ColString, Size: 4096},
	{Name: "double_val", Type: ColDouble},
	{Name: "timespec_val", Type: ColTimestamp},
	{Name: "guid_val", Type: ColGUID, Size: guid.EncodingLength},
	{Name: "numeric_val", Type: ColNumeric},
	{Name: "binary_val", Type: ColBinary},
}

// slotDataColumns are every slot column except the serial id.
var slotDataColumns = slotColumns[1:]

// SlotColumns returns the slot table layout, for DDL rendering.
func SlotColumns() []Column {
	return append([]Column(nil), slotColumns...)
}

// DeleteSlots removes every slot row owned by g.
func (e *Engine) DeleteSlots(ctx context.Context, g guid.GUID) error {
	return e.DeleteWhere(ctx, SlotsTable, slotKeyCol, g.String())
}

// SaveSlots replaces the slot rows of ent with its current metadata frame
// and records the row count in the instance's backend data.
func (e *Engine) SaveSlots(ctx context.Context, ent qof.Entity) error {
	inst := ent.Inst()
	owner := inst.GUID().String()
	if err := e.DeleteSlots(ctx, inst.GUID()); err != nil {
		return err
	}

	slots := kvp.Flatten(inst.Slots())
	if len(slots) > 0 {
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			SlotsTable, e.selectList(slotDataColumns), e.placeholders(1, 11))
		for _, s := range slots {
			if _, err := e.execStmt(ctx, "insert", SlotsTable, q, slotArgs(owner, s)...); err != nil {
				return err
			}
		}
	}
	inst.SetIData(uint32(len(slots)))
	return nil
}

// slotArgs lays out one slot in slotDataColumns order.
func slotArgs(owner string, s kvp.Slot) []any {
	args := []any{owner, s.Path, int64(s.Value.Type()), nil, nil, nil, nil, nil, nil, nil, nil}
	switch v := s.Value.(type) {
	case kvp.Int64:
		args[3] = int64(v)
	case kvp.String:
		args[4] = string(v)
	case kvp.Double:
		args[5] = float64(v)
	case kvp.Timestamp:
		args[6] = timeWire(time.Time(v))
	case kvp.GUID:
		args[7] = guid.GUID(v).String()
	case kvp.Numeric:
		args[8] = v.Num
		args[9] = v.Denom
	case kvp.Binary:
		args[10] = []byte(v)
	}
	return args
}

// slotValue rebuilds the value stored in one slot row.
func slotValue(r Row) (kvp.Value, error) {
	tag, err := ToInt64(r["slot_type"])
	if err != nil {
		return nil, err
	}
	switch kvp.Type(tag) {
	case kvp.TypeInt64:
		n, err := ToInt64(r["int64_val"])
		return kvp.NewInt64(n), err
	case kvp.TypeDouble:
		f, err := ToFloat64(r["double_val"])
		return kvp.NewDouble(f), err
	case kvp.TypeNumeric:
		num, err := ToInt64(r["numeric_val_num"])
		if err != nil {
			return nil, err
		}
		denom, err := ToInt64(r["numeric_val_denom"])
		if err != nil {
			return nil, err
		}
		return kvp.NewNumeric(numeric.New(num, denom)), nil
	case kvp.TypeString:
		return kvp.NewString(ToString(r["string_val"])), nil
	case kvp.TypeGUID:
		g, err := ToGUID(r["guid_val"])
		return kvp.NewGUID(g), err
	case kvp.TypeTimestamp:
		t, err := ToTime(r["timespec_val"])
		return kvp.NewTimestamp(t), err
	case kvp.TypeBinary:
		return kvp.Binary(ToBytes(r["binary_val"])), nil
	case kvp.TypeList:
		return kvp.List{}, nil
	case kvp.TypeFrame:
		return kvp.NewFrame(), nil
	}
	return nil, fmt.Errorf("unknown slot type %d", tag)
}

// LoadSlotsForList loads the metadata frames of ents with one batched
// query per batch of owners. Entities without slot rows get an empty
// frame.
func (e *Engine) LoadSlotsForList(ctx context.Context, ents []qof.Entity) error {
	if len(ents) == 0 {
		return nil
	}
	keys := make([]any, len(ents))
	for i, ent := range ents {
		keys[i] = ent.Inst().GUID().String()
	}
	rows, err := e.SelectIn(ctx, SlotsTable, slotDataColumns, slotKeyCol, keys)
	if err != nil {
		return err
	}

	byOwner := make(map[guid.GUID][]kvp.Slot, len(ents))
	for _, r := range rows {
		owner, err := ToGUID(r[slotKeyCol])
		if err != nil {
			return qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: load slots", err)
		}
		v, err := slotValue(r)
		if err != nil {
			return qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: load slots", err)
		}
		byOwner[owner] = append(byOwner[owner], kvp.Slot{Path: ToString(r["name"]), Value: v})
	}

	for _, ent := range ents {
		inst := ent.Inst()
		slots := byOwner[inst.GUID()]
		frame, err := kvp.Unflatten(slots)
		if err != nil {
			return qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: load slots", err)
		}
		inst.LoadSlots(frame)
		inst.SetIData(uint32(len(slots)))
	}
	return nil
}
