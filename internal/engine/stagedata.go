package engine

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"tss-custody/internal/frost"
	"tss-custody/internal/sharecrypt"
	"tss-custody/internal/storage/models"
)

// stagePayload is the tagged variant persisted as TssStage.StageData.
// Exactly one variant field is set, keyed by StageType; the blob is
// CBOR-encoded and encrypted before it reaches the database because the
// sign variant carries one-time nonce material.
type stagePayload struct {
	StageType models.StageType  `cbor:"stage_type"`
	Sign      *signStageData    `cbor:"sign,omitempty"`
	Keygen    *keygenStageData  `cbor:"keygen,omitempty"`
	Triples   *triplesStageData `cbor:"triples,omitempty"`
}

// signStageData holds the server's round-1 output for a signing session.
// Nonces are cleared when the stage completes: they must never sign twice.
type signStageData struct {
	Message          []byte           `cbor:"message"`
	CurveType        models.CurveType `cbor:"curve_type"`
	ServerCommitment frost.Commitment `cbor:"server_commitment"`
	ServerNonces     *frost.Nonces    `cbor:"server_nonces,omitempty"`
}

// keygenStageData records what a keygen operation produced.
type keygenStageData struct {
	Curves     []models.CurveType `cbor:"curves"`
	PublicKeys []string           `cbor:"public_keys"`
}

// triplesStageData carries precomputed multiplication triples for protocols
// that front-load them.
type triplesStageData struct {
	Triples [][]byte `cbor:"triples"`
}

func (p *stagePayload) validate() error {
	switch p.StageType {
	case models.StageSign:
		if p.Sign == nil || p.Keygen != nil || p.Triples != nil {
			return errors.New("sign stage payload must carry exactly the sign variant")
		}
	case models.StageKeygen:
		if p.Keygen == nil || p.Sign != nil || p.Triples != nil {
			return errors.New("keygen stage payload must carry exactly the keygen variant")
		}
	case models.StageTriples:
		if p.Triples == nil || p.Sign != nil || p.Keygen != nil {
			return errors.New("triples stage payload must carry exactly the triples variant")
		}
	default:
		return errors.Errorf("unknown stage type %q", p.StageType)
	}
	return nil
}

func encodeStagePayload(cipher *sharecrypt.Cipher, payload *stagePayload) ([]byte, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	plain, err := cbor.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode stage payload")
	}
	return cipher.Encrypt(plain)
}

func decodeStagePayload(cipher *sharecrypt.Cipher, data []byte, want models.StageType) (*stagePayload, error) {
	plain, err := cipher.Decrypt(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt stage payload")
	}
	payload := &stagePayload{}
	if err := cbor.Unmarshal(plain, payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode stage payload")
	}
	if payload.StageType != want {
		return nil, errors.Errorf("stage payload is %q, want %q", payload.StageType, want)
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	return payload, nil
}
