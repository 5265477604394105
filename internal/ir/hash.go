package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEvent   = "rewind/event/v1"
	DomainClasses = "rewind/classes/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of a journal event.
// The same session, seq, kind and detail always produce the same ID, which
// makes store writes idempotent.
func EventID(sessionID string, seq int64, kind EventKind, detail IRObject) (string, error) {
	if detail == nil {
		detail = IRObject{}
	}
	canonical, err := MarshalCanonical(IRObject{
		"session_id": IRString(sessionID),
		"seq":        IRInt(seq),
		"kind":       IRString(string(kind)),
		"detail":     detail,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventID is EventID for callers whose detail is known to be canonical.
func MustEventID(sessionID string, seq int64, kind EventKind, detail IRObject) string {
	id, err := EventID(sessionID, seq, kind, detail)
	if err != nil {
		panic(err)
	}
	return id
}

// ClassesHash fingerprints a set of compiled classes, so recorded sessions
// can be matched to the class files they ran against.
func ClassesHash(classes []ClassSpec) (string, error) {
	list := make(IRArray, 0, len(classes))
	for _, c := range classes {
		props := make(IRObject, len(c.Properties))
		for _, p := range c.Properties {
			props[p.Name] = IRString(p.Type)
		}
		methods := make(IRObject, len(c.Methods))
		for _, m := range c.Methods {
			args := make(IRArray, len(m.Args))
			for i, a := range m.Args {
				args[i] = IRString(a.Name + ":" + a.Type)
			}
			methods[m.Name] = IRObject{
				"args":     args,
				"effect":   IRString(string(m.Effect)),
				"property": IRString(m.Property),
			}
		}
		list = append(list, IRObject{
			"name":       IRString(c.Name),
			"refcounted": IRBool(c.RefCounted),
			"properties": props,
			"methods":    methods,
		})
	}
	canonical, err := MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("ClassesHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainClasses, canonical), nil
}
