package directory

import (
	"encoding/xml"
	"strings"
)

// The report response is a DAV multistatus document. Only the href, etag and
// address-data fields matter for reconciliation; everything else is skipped.

type multistatus struct {
	XMLName   xml.Name   `xml:"multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Status string `xml:"status"`
	Prop   prop   `xml:"prop"`
}

type prop struct {
	ETag        string `xml:"getetag"`
	AddressData string `xml:"address-data"`
}

func parseMultistatus(data []byte, addressbook string) ([]InboundRecord, error) {
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, err
	}

	var records []InboundRecord
	for _, resp := range ms.Responses {
		// Skip the collection itself and non-record entries.
		if !strings.HasSuffix(resp.Href, ".vcf") {
			continue
		}

		var etag, payload string
		for _, ps := range resp.Propstats {
			if ps.Status != "" && !strings.Contains(ps.Status, "200") {
				continue
			}
			if ps.Prop.ETag != "" {
				etag = strings.Trim(ps.Prop.ETag, `"`)
			}
			if ps.Prop.AddressData != "" {
				payload = strings.TrimSpace(ps.Prop.AddressData)
			}
		}
		if payload == "" {
			continue
		}

		records = append(records, InboundRecord{
			ExternalID:  ExternalIDFromHref(resp.Href),
			Href:        resp.Href,
			ETag:        etag,
			Addressbook: addressbook,
			Payload:     payload,
		})
	}
	return records, nil
}
