package flowdecoder

import (
	"fmt"
	"net/netip"

	"gixflow/internal/model"
)

// ipfixHeaderLen is the fixed IPFIX message header: version, length,
// export_time, sequence_number, observation_domain_id (RFC 7011 §3.1).
const ipfixHeaderLen = 16

const (
	ipfixSetTemplate        = 2
	ipfixSetOptionsTemplate = 3
	ipfixSetDataMin         = 256 // 256 is the conventional first data set-id;
	// 257/512 below are vendor-specific fixed option-data layouts this
	// decoder knows to skip rather than misinterpret as flow data.
	ipfixSetVendorOptionA = 257
	ipfixSetVendorOptionB = 512
)

// decodeIPFIX parses an IPFIX (v10) datagram (spec.md §4.3.1).
func (d *Decoder) decodeIPFIX(exporter netip.Addr, data []byte) ([]Event, error) {
	return recoverDecode(func() ([]Event, error) {
		if len(data) < ipfixHeaderLen {
			return nil, fmt.Errorf("%w: ipfix header truncated", model.ErrMalformedDatagram)
		}
		msgLen := int(beUint16(data[2:4]))
		domainID := beUint32(data[12:16])
		if msgLen > len(data) {
			msgLen = len(data)
		}
		cursor := ipfixHeaderLen

		var events []Event
		declared := make(map[model.TemplateKey]bool)
		for cursor+4 <= msgLen {
			setID := beUint16(data[cursor : cursor+2])
			setLen := int(beUint16(data[cursor+2 : cursor+4]))
			if setLen < 4 || cursor+setLen > msgLen {
				return events, fmt.Errorf("%w: ipfix set length out of range", model.ErrMalformedDatagram)
			}
			body := data[cursor+4 : cursor+setLen]

			switch {
			case setID == ipfixSetTemplate:
				ev, err := parseIPFIXTemplateSet(exporter, domainID, body, data[cursor:cursor+setLen])
				if err != nil {
					return events, err
				}
				events = append(events, ev...)
				for _, e := range ev {
					declared[e.Key] = true
				}
			case setID == ipfixSetOptionsTemplate:
				ev, err := parseIPFIXOptionsTemplateSet(exporter, domainID, body, data[cursor:cursor+setLen])
				if err != nil {
					return events, err
				}
				events = append(events, ev...)
				for _, e := range ev {
					declared[e.Key] = true
				}
			case setID == ipfixSetVendorOptionA || setID == ipfixSetVendorOptionB:
				// Known fixed-layout vendor option data; not flow records,
				// skip (spec.md §4.3.1).
			case setID >= ipfixSetDataMin:
				key := model.TemplateKey{Exporter: exporter, DomainID: domainID, TemplateID: setID}
				tmpl, known := d.templates.Get(key)
				if !known {
					known = declared[key]
					tmpl = junosIPFIXTemplate
				}
				records := decodeFixedRecords(tmpl, body)
				if records != nil {
					events = append(events, Event{Kind: EventData, Key: key, Records: records})
				} else if !known {
					return events, fmt.Errorf("%w: template %d from exporter %s, domain %d", model.ErrUnknownTemplate, setID, exporter, domainID)
				}
			default:
				// Unrecognized set-id: drop per spec.md §7.
			}

			cursor += setLen
		}
		return events, nil
	})
}

func parseIPFIXTemplateSet(exporter netip.Addr, domainID uint32, body, raw []byte) ([]Event, error) {
	var events []Event
	pos := 0
	for pos+4 <= len(body) {
		templateID := beUint16(body[pos : pos+2])
		fieldCount := int(beUint16(body[pos+2 : pos+4]))
		pos += 4

		fields, n, err := readFieldSpecs(body[pos:], fieldCount)
		if err != nil {
			return events, err
		}
		pos += n

		key := model.TemplateKey{Exporter: exporter, DomainID: domainID, TemplateID: templateID}
		events = append(events, Event{
			Kind:       EventTemplate,
			Key:        key,
			Template:   model.Template{Fields: fields},
			RawTmplSet: raw,
		})
	}
	return events, nil
}

func parseIPFIXOptionsTemplateSet(exporter netip.Addr, domainID uint32, body, raw []byte) ([]Event, error) {
	var events []Event
	pos := 0
	for pos+6 <= len(body) {
		templateID := beUint16(body[pos : pos+2])
		fieldCount := int(beUint16(body[pos+2 : pos+4]))
		scopeCount := int(beUint16(body[pos+4 : pos+6]))
		pos += 6

		scopeFields, n, err := readFieldSpecs(body[pos:], scopeCount)
		if err != nil {
			return events, err
		}
		pos += n

		remaining := fieldCount - scopeCount
		if remaining < 0 {
			return events, fmt.Errorf("%w: ipfix options template scope count exceeds field count", model.ErrMalformedDatagram)
		}
		dataFields, n, err := readFieldSpecs(body[pos:], remaining)
		if err != nil {
			return events, err
		}
		pos += n

		key := model.TemplateKey{Exporter: exporter, DomainID: domainID, TemplateID: templateID}
		events = append(events, Event{
			Kind:       EventTemplate,
			Key:        key,
			Template:   model.Template{Fields: append(scopeFields, dataFields...)},
			RawTmplSet: raw,
		})
	}
	return events, nil
}

// readFieldSpecs reads n (field_id, length) pairs starting at buf[0],
// returning the parsed fields and the number of bytes consumed.
func readFieldSpecs(buf []byte, n int) ([]model.FieldSpec, int, error) {
	fields := make([]model.FieldSpec, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		if pos+4 > len(buf) {
			return nil, pos, fmt.Errorf("%w: ipfix field spec truncated", model.ErrMalformedDatagram)
		}
		fields = append(fields, model.FieldSpec{
			ID:     beUint16(buf[pos : pos+2]),
			Length: beUint16(buf[pos+2 : pos+4]),
		})
		pos += 4
	}
	return fields, pos, nil
}
