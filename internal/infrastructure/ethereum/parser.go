package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/blue-liquidator/internal/domain/entities"
	"github.com/bimakw/blue-liquidator/internal/domain/events"
)

// SourceABI returns the contract ABI used to decode logs of a source
func SourceABI(source events.Source) (abi.ABI, bool) {
	switch source {
	case events.SourceMorpho:
		return MorphoABI, true
	case events.SourceIrm:
		return IrmABI, true
	case events.SourcePreLiquidation:
		return PreLiquidationABI, true
	case events.SourceVault:
		return VaultABI, true
	default:
		return abi.ABI{}, false
	}
}

// TrackedTopics returns the event signatures fetched for a source
func TrackedTopics(source events.Source) []common.Hash {
	contract, ok := SourceABI(source)
	if !ok {
		return nil
	}
	topics := make([]common.Hash, 0, len(contract.Events))
	for _, ev := range contract.Events {
		topics = append(topics, ev.ID)
	}
	return topics
}

// ParseLog decodes a raw log fetched from source into a typed event.
// A log whose signature is not tracked for the source returns a nil event and no error.
func ParseLog(source events.Source, log types.Log) (events.Event, error) {
	contract, ok := SourceABI(source)
	if !ok {
		return nil, fmt.Errorf("unknown log source %q", source)
	}
	if len(log.Topics) == 0 {
		return nil, nil
	}

	ev, err := contract.EventByID(log.Topics[0])
	if err != nil {
		return nil, nil
	}

	fields := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := contract.UnpackIntoMap(fields, ev.Name, log.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack %s data: %w", ev.Name, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse %s topics: %w", ev.Name, err)
	}

	f := fieldReader{name: ev.Name, fields: fields}
	decoded := decodeEvent(ev.Name, log, &f)
	if f.err != nil {
		return nil, f.err
	}
	return decoded, nil
}

func decodeEvent(name string, log types.Log, f *fieldReader) events.Event {
	switch name {
	case "CreateMarket":
		var params marketParamsTuple
		f.tuple("marketParams", &params)
		return &events.CreateMarket{
			ID: f.hash("id"),
			Params: entities.MarketParams{
				LoanToken:       params.LoanToken,
				CollateralToken: params.CollateralToken,
				Oracle:          params.Oracle,
				Irm:             params.Irm,
				Lltv:            params.Lltv,
			},
		}
	case "SetFee":
		return &events.SetFee{ID: f.hash("id"), NewFee: f.integer("newFee")}
	case "AccrueInterest":
		return &events.AccrueInterest{
			ID:             f.hash("id"),
			PrevBorrowRate: f.integer("prevBorrowRate"),
			Interest:       f.integer("interest"),
			FeeShares:      f.integer("feeShares"),
		}
	case "Supply":
		return &events.Supply{
			ID: f.hash("id"), Caller: f.address("caller"), OnBehalf: f.address("onBehalf"),
			Assets: f.integer("assets"), Shares: f.integer("shares"),
		}
	case "Withdraw":
		return &events.Withdraw{
			ID: f.hash("id"), Caller: f.address("caller"), OnBehalf: f.address("onBehalf"), Receiver: f.address("receiver"),
			Assets: f.integer("assets"), Shares: f.integer("shares"),
		}
	case "Borrow":
		return &events.Borrow{
			ID: f.hash("id"), Caller: f.address("caller"), OnBehalf: f.address("onBehalf"), Receiver: f.address("receiver"),
			Assets: f.integer("assets"), Shares: f.integer("shares"),
		}
	case "Repay":
		return &events.Repay{
			ID: f.hash("id"), Caller: f.address("caller"), OnBehalf: f.address("onBehalf"),
			Assets: f.integer("assets"), Shares: f.integer("shares"),
		}
	case "SupplyCollateral":
		return &events.SupplyCollateral{
			ID: f.hash("id"), Caller: f.address("caller"), OnBehalf: f.address("onBehalf"), Assets: f.integer("assets"),
		}
	case "WithdrawCollateral":
		return &events.WithdrawCollateral{
			ID: f.hash("id"), Caller: f.address("caller"), OnBehalf: f.address("onBehalf"), Receiver: f.address("receiver"),
			Assets: f.integer("assets"),
		}
	case "Liquidate":
		return &events.Liquidate{
			ID:            f.hash("id"),
			Caller:        f.address("caller"),
			Borrower:      f.address("borrower"),
			RepaidAssets:  f.integer("repaidAssets"),
			RepaidShares:  f.integer("repaidShares"),
			SeizedAssets:  f.integer("seizedAssets"),
			BadDebtAssets: f.integer("badDebtAssets"),
			BadDebtShares: f.integer("badDebtShares"),
		}
	case "SetAuthorization":
		return &events.SetAuthorization{
			Caller:          f.address("caller"),
			Authorizer:      f.address("authorizer"),
			Authorized:      f.address("authorized"),
			NewIsAuthorized: f.flag("newIsAuthorized"),
		}
	case "BorrowRateUpdate":
		return &events.BorrowRateUpdate{
			ID:            f.hash("id"),
			AvgBorrowRate: f.integer("avgBorrowRate"),
			RateAtTarget:  f.integer("rateAtTarget"),
		}
	case "CreatePreLiquidation":
		var params preLiquidationParamsTuple
		f.tuple("preLiquidationParams", &params)
		return &events.CreatePreLiquidation{
			PreLiquidation: f.address("preLiquidation"),
			ID:             f.hash("id"),
			Params: entities.PreLiquidationParams{
				PreLltv:              params.PreLltv,
				PreLCF1:              params.PreLCF1,
				PreLCF2:              params.PreLCF2,
				PreLIF1:              params.PreLIF1,
				PreLIF2:              params.PreLIF2,
				PreLiquidationOracle: params.PreLiquidationOracle,
			},
		}
	case "SetWithdrawQueue":
		return &events.SetWithdrawQueue{
			Vault:            log.Address,
			Caller:           f.address("caller"),
			NewWithdrawQueue: f.hashes("newWithdrawQueue"),
		}
	default:
		return nil
	}
}

// fieldReader pulls typed values out of an unpacked log, keeping the first error
type fieldReader struct {
	name   string
	fields map[string]interface{}
	err    error
}

func (f *fieldReader) fail(key string, v interface{}) {
	if f.err == nil {
		f.err = fmt.Errorf("unexpected %s.%s value %T", f.name, key, v)
	}
}

func (f *fieldReader) hash(key string) common.Hash {
	v, ok := f.fields[key].([32]byte)
	if !ok {
		f.fail(key, f.fields[key])
	}
	return common.Hash(v)
}

func (f *fieldReader) hashes(key string) []common.Hash {
	v, ok := f.fields[key].([][32]byte)
	if !ok {
		f.fail(key, f.fields[key])
		return nil
	}
	out := make([]common.Hash, len(v))
	for i := range v {
		out[i] = common.Hash(v[i])
	}
	return out
}

func (f *fieldReader) address(key string) common.Address {
	v, ok := f.fields[key].(common.Address)
	if !ok {
		f.fail(key, f.fields[key])
	}
	return v
}

func (f *fieldReader) integer(key string) *big.Int {
	v, ok := f.fields[key].(*big.Int)
	if !ok || v == nil {
		f.fail(key, f.fields[key])
		return new(big.Int)
	}
	return v
}

func (f *fieldReader) flag(key string) bool {
	v, ok := f.fields[key].(bool)
	if !ok {
		f.fail(key, f.fields[key])
	}
	return v
}

func (f *fieldReader) tuple(key string, dst interface{}) {
	v, ok := f.fields[key]
	if !ok {
		f.fail(key, nil)
		return
	}
	var err error
	switch d := dst.(type) {
	case *marketParamsTuple:
		err = convertInto(v, d)
	case *preLiquidationParamsTuple:
		err = convertInto(v, d)
	}
	if err != nil && f.err == nil {
		f.err = fmt.Errorf("%s.%s: %w", f.name, key, err)
	}
}
