package domain

import "encoding/json"

// Decoder turns a serialized payload into its event value.
type Decoder func(data []byte) (Event, error)

func decoderFor[E Event]() Decoder {
	return func(data []byte) (Event, error) {
		var e E
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil
	}
}

// decoders is the closed set of event types the system understands.
var decoders = map[string]Decoder{
	AccountOpened{}.EventType():                  decoderFor[AccountOpened](),
	FundsDeposited{}.EventType():                 decoderFor[FundsDeposited](),
	FundsWithdrawn{}.EventType():                 decoderFor[FundsWithdrawn](),
	AccountClosed{}.EventType():                  decoderFor[AccountClosed](),
	CustomerCreated{}.EventType():                decoderFor[CustomerCreated](),
	CustomerUpdated{}.EventType():                decoderFor[CustomerUpdated](),
	TransferInitiated{}.EventType():              decoderFor[TransferInitiated](),
	TransferSourceDebited{}.EventType():          decoderFor[TransferSourceDebited](),
	TransferDestinationCredited{}.EventType():    decoderFor[TransferDestinationCredited](),
	TransferSourceDebitCompensated{}.EventType(): decoderFor[TransferSourceDebitCompensated](),
	TransferCompleted{}.EventType():              decoderFor[TransferCompleted](),
	TransferFailed{}.EventType():                 decoderFor[TransferFailed](),
	LedgerTransactionRecorded{}.EventType():      decoderFor[LedgerTransactionRecorded](),
	SettlementAccountCreated{}.EventType():       decoderFor[SettlementAccountCreated](),
	SettlementCredited{}.EventType():             decoderFor[SettlementCredited](),
	SettlementDebited{}.EventType():              decoderFor[SettlementDebited](),
}

// Decoders returns a copy of the registry keyed by event type.
func Decoders() map[string]Decoder {
	out := make(map[string]Decoder, len(decoders))
	for k, v := range decoders {
		out[k] = v
	}
	return out
}
