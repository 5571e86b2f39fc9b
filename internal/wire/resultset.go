package wire

import "github.com/bigwindlee/mysqlproxy/internal/logrecord"

// ColumnType is the MySQL column type code.
type ColumnType byte

const (
	TypeDecimal   ColumnType = 0x00
	TypeTiny      ColumnType = 0x01
	TypeShort     ColumnType = 0x02
	TypeLong      ColumnType = 0x03
	TypeTimestamp ColumnType = 0x07
	TypeInt24     ColumnType = 0x09
	TypeDate      ColumnType = 0x0a
	TypeDatetime  ColumnType = 0x0c
	TypeNewDecimal ColumnType = 0xf6
	TypeEnum      ColumnType = 0xf7
	TypeBlob      ColumnType = 0xfc
	TypeVarString ColumnType = 0xfd
	TypeString    ColumnType = 0xfe
)

// columnTypeNames mirrors the fixed column-type-to-name table: any
// type absent from this map reports as UNKNOWN and logs a warning,
// it is never a decode failure.
var columnTypeNames = map[ColumnType]string{
	TypeString:     "CHAR",
	TypeVarString:  "VARCHAR",
	TypeBlob:       "BLOB",
	TypeTiny:       "TINYINT",
	TypeShort:      "SMALLINT",
	TypeInt24:      "MEDIUMINT",
	TypeLong:       "INT",
	TypeNewDecimal: "DECIMAL",
	TypeDecimal:    "DECIMAL",
	TypeEnum:       "ENUM",
	TypeTimestamp:  "TIMESTAMP",
	TypeDate:       "DATE",
	TypeDatetime:   "DATETIME",
}

// ColumnTypeName returns the printable name for a column type,
// emitting a warning log record and returning "UNKNOWN" for types
// outside the fixed table, per the wire codec's transparency
// requirement: unknown types must never fail decoding.
func ColumnTypeName(t ColumnType, logger logrecord.Logger) string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	if logger != nil {
		logger.Log(logrecord.Record{
			Logger:  "wire",
			Level:   logrecord.Warning,
			Message: "unknown column type encountered during decode",
		})
	}
	return "UNKNOWN"
}

// ColumnDef is a decoded column-definition packet (41-protocol form).
type ColumnDef struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	CharsetID    uint16
	Length       uint32
	Type         ColumnType
	Flags        uint16
	Decimals     byte
}

// DecodeColumnDef parses a single column-definition packet payload.
func DecodeColumnDef(payload []byte) (ColumnDef, error) {
	var c ColumnDef
	pos := 0
	readStr := func() (string, bool) {
		s, n, ok := LenEncString(payload, pos)
		if !ok {
			return "", false
		}
		pos += n
		return s, true
	}
	var ok bool
	if c.Catalog, ok = readStr(); !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	if c.Schema, ok = readStr(); !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	if c.Table, ok = readStr(); !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	if c.OrgTable, ok = readStr(); !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	if c.Name, ok = readStr(); !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	if c.OrgName, ok = readStr(); !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	// length-encoded integer, fixed to 0x0c (12) for the remaining fields
	_, n, ok := LenEncInt(payload, pos)
	if !ok {
		return c, errf(EOF, "wire: truncated column definition")
	}
	pos += n
	if pos+12 > len(payload) {
		return c, errf(EOF, "wire: truncated column definition")
	}
	c.CharsetID = uint16(payload[pos]) | uint16(payload[pos+1])<<8
	c.Length = uint32(payload[pos+2]) | uint32(payload[pos+3])<<8 | uint32(payload[pos+4])<<16 | uint32(payload[pos+5])<<24
	c.Type = ColumnType(payload[pos+6])
	c.Flags = uint16(payload[pos+7]) | uint16(payload[pos+8])<<8
	c.Decimals = payload[pos+9]
	return c, nil
}

// EncodeColumnDef builds a column-definition packet payload.
func EncodeColumnDef(c ColumnDef) []byte {
	out := EncodeLenEncString(nil, valueOr(c.Catalog, "def"))
	out = EncodeLenEncString(out, c.Schema)
	out = EncodeLenEncString(out, c.Table)
	out = EncodeLenEncString(out, c.OrgTable)
	out = EncodeLenEncString(out, c.Name)
	out = EncodeLenEncString(out, c.OrgName)
	out = EncodeLenEncInt(out, 0x0c)
	out = append(out, byte(c.CharsetID), byte(c.CharsetID>>8))
	lb := make([]byte, 4)
	lb[0], lb[1], lb[2], lb[3] = byte(c.Length), byte(c.Length>>8), byte(c.Length>>16), byte(c.Length>>24)
	out = append(out, lb...)
	out = append(out, byte(c.Type))
	out = append(out, byte(c.Flags), byte(c.Flags>>8))
	out = append(out, c.Decimals)
	out = append(out, 0, 0) // filler
	return out
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Row is a decoded text-protocol result row: each column value, or
// nil for SQL NULL.
type Row struct {
	Values [][]byte
}

// DecodeRow parses a text-protocol row packet, given the number of
// columns expected.
func DecodeRow(payload []byte, numCols int) (Row, error) {
	row := Row{Values: make([][]byte, numCols)}
	pos := 0
	for i := 0; i < numCols; i++ {
		if pos >= len(payload) {
			return row, errf(EOF, "wire: truncated row packet")
		}
		if payload[pos] == 0xfb { // NULL marker
			row.Values[i] = nil
			pos++
			continue
		}
		s, n, ok := LenEncString(payload, pos)
		if !ok {
			return row, errf(EOF, "wire: truncated row packet")
		}
		row.Values[i] = []byte(s)
		pos += n
	}
	return row, nil
}

// EncodeRow builds a text-protocol row packet payload.
func EncodeRow(row Row) []byte {
	var out []byte
	for _, v := range row.Values {
		if v == nil {
			out = append(out, 0xfb)
			continue
		}
		out = EncodeLenEncString(out, string(v))
	}
	return out
}

// EncodeComQuery builds a COM_QUERY command payload.
func EncodeComQuery(query string) []byte {
	out := make([]byte, 0, 1+len(query))
	out = append(out, 0x03)
	out = append(out, query...)
	return out
}

// DecodeComQuery extracts the query text from a COM_QUERY payload.
func DecodeComQuery(payload []byte) (string, error) {
	if len(payload) == 0 || payload[0] != 0x03 {
		return "", errf(Invalid, "wire: not a COM_QUERY packet")
	}
	return string(payload[1:]), nil
}
