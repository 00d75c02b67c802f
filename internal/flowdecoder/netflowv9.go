package flowdecoder

import (
	"fmt"
	"net/netip"

	"gixflow/internal/model"
)

// netflowV9HeaderLen is the fixed NetFlow v9 header size including the
// version word: version, count, sys_uptime, unix_secs, package_sequence,
// source_id (RFC 3954 §5.1).
const netflowV9HeaderLen = 20

const (
	v9SetTemplate    = 0
	v9DataFlowsetMin = 256 // spec.md §9: set-ids >= 256 are data flowsets
)

// decodeNetflowV9 parses a NetFlow v9 datagram (spec.md §4.3.2).
func (d *Decoder) decodeNetflowV9(exporter netip.Addr, data []byte) ([]Event, error) {
	return recoverDecode(func() ([]Event, error) {
		if len(data) < netflowV9HeaderLen {
			return nil, fmt.Errorf("%w: netflow v9 header truncated", model.ErrMalformedDatagram)
		}
		sourceID := beUint32(data[16:20])
		cursor := netflowV9HeaderLen

		var events []Event
		declared := make(map[model.TemplateKey]bool)
		for cursor+4 <= len(data) {
			setID := beUint16(data[cursor : cursor+2])
			setLen := int(beUint16(data[cursor+2 : cursor+4]))
			if setLen < 4 || cursor+setLen > len(data) {
				return events, fmt.Errorf("%w: netflow v9 flowset length out of range", model.ErrMalformedDatagram)
			}
			body := data[cursor+4 : cursor+setLen]

			switch {
			case setID == v9SetTemplate:
				ev, err := parseV9TemplateSet(exporter, sourceID, body, data[cursor:cursor+setLen])
				if err != nil {
					return events, err
				}
				events = append(events, ev...)
				for _, e := range ev {
					declared[e.Key] = true
				}
			case setID >= v9DataFlowsetMin:
				key := model.TemplateKey{Exporter: exporter, DomainID: sourceID, TemplateID: setID}
				tmpl, known := d.templates.Get(key)
				if !known {
					known = declared[key]
					tmpl = mikrotikV9Template
				}
				records := decodeFixedRecords(tmpl, body)
				if records != nil {
					events = append(events, Event{Kind: EventData, Key: key, Records: records})
				} else if !known {
					return events, fmt.Errorf("%w: template %d from exporter %s, domain %d", model.ErrUnknownTemplate, setID, exporter, sourceID)
				}
			default:
				// Unknown/options set-id: drop per spec.md §7 (malformed
				// datagram -> drop the set, keep decoding the rest).
			}

			cursor += setLen
		}
		return events, nil
	})
}

// parseV9TemplateSet parses one or more (template_id, field_count,
// fields...) template records packed into a single template flowset body.
func parseV9TemplateSet(exporter netip.Addr, sourceID uint32, body, raw []byte) ([]Event, error) {
	var events []Event
	pos := 0
	for pos+4 <= len(body) {
		templateID := beUint16(body[pos : pos+2])
		fieldCount := int(beUint16(body[pos+2 : pos+4]))
		pos += 4

		fields := make([]model.FieldSpec, 0, fieldCount)
		for i := 0; i < fieldCount; i++ {
			if pos+4 > len(body) {
				return events, fmt.Errorf("%w: netflow v9 template field truncated", model.ErrMalformedDatagram)
			}
			fields = append(fields, model.FieldSpec{
				ID:     beUint16(body[pos : pos+2]),
				Length: beUint16(body[pos+2 : pos+4]),
			})
			pos += 4
		}

		key := model.TemplateKey{Exporter: exporter, DomainID: sourceID, TemplateID: templateID}
		events = append(events, Event{
			Kind:       EventTemplate,
			Key:        key,
			Template:   model.Template{Fields: fields},
			RawTmplSet: raw,
		})
	}
	return events, nil
}
