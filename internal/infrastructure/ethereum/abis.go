package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const morphoABIJSON = `[
{"type":"event","name":"CreateMarket","inputs":[
 {"name":"id","type":"bytes32","indexed":true},
 {"name":"marketParams","type":"tuple","indexed":false,"components":[
  {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
  {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]}]},
{"type":"event","name":"SetFee","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"newFee","type":"uint256","indexed":false}]},
{"type":"event","name":"AccrueInterest","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"prevBorrowRate","type":"uint256","indexed":false},
 {"name":"interest","type":"uint256","indexed":false},{"name":"feeShares","type":"uint256","indexed":false}]},
{"type":"event","name":"Supply","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":true},
 {"name":"onBehalf","type":"address","indexed":true},{"name":"assets","type":"uint256","indexed":false},
 {"name":"shares","type":"uint256","indexed":false}]},
{"type":"event","name":"Withdraw","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":false},
 {"name":"onBehalf","type":"address","indexed":true},{"name":"receiver","type":"address","indexed":true},
 {"name":"assets","type":"uint256","indexed":false},{"name":"shares","type":"uint256","indexed":false}]},
{"type":"event","name":"Borrow","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":false},
 {"name":"onBehalf","type":"address","indexed":true},{"name":"receiver","type":"address","indexed":true},
 {"name":"assets","type":"uint256","indexed":false},{"name":"shares","type":"uint256","indexed":false}]},
{"type":"event","name":"Repay","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":true},
 {"name":"onBehalf","type":"address","indexed":true},{"name":"assets","type":"uint256","indexed":false},
 {"name":"shares","type":"uint256","indexed":false}]},
{"type":"event","name":"SupplyCollateral","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":true},
 {"name":"onBehalf","type":"address","indexed":true},{"name":"assets","type":"uint256","indexed":false}]},
{"type":"event","name":"WithdrawCollateral","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":false},
 {"name":"onBehalf","type":"address","indexed":true},{"name":"receiver","type":"address","indexed":true},
 {"name":"assets","type":"uint256","indexed":false}]},
{"type":"event","name":"Liquidate","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"caller","type":"address","indexed":true},
 {"name":"borrower","type":"address","indexed":true},{"name":"repaidAssets","type":"uint256","indexed":false},
 {"name":"repaidShares","type":"uint256","indexed":false},{"name":"seizedAssets","type":"uint256","indexed":false},
 {"name":"badDebtAssets","type":"uint256","indexed":false},{"name":"badDebtShares","type":"uint256","indexed":false}]},
{"type":"event","name":"SetAuthorization","inputs":[
 {"name":"caller","type":"address","indexed":true},{"name":"authorizer","type":"address","indexed":true},
 {"name":"authorized","type":"address","indexed":true},{"name":"newIsAuthorized","type":"bool","indexed":false}]},
{"type":"function","name":"liquidate","stateMutability":"nonpayable","inputs":[
 {"name":"marketParams","type":"tuple","components":[
  {"name":"loanToken","type":"address"},{"name":"collateralToken","type":"address"},
  {"name":"oracle","type":"address"},{"name":"irm","type":"address"},{"name":"lltv","type":"uint256"}]},
 {"name":"borrower","type":"address"},{"name":"seizedAssets","type":"uint256"},
 {"name":"repaidShares","type":"uint256"},{"name":"data","type":"bytes"}],
 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}]}
]`

const irmABIJSON = `[
{"type":"event","name":"BorrowRateUpdate","inputs":[
 {"name":"id","type":"bytes32","indexed":true},{"name":"avgBorrowRate","type":"uint256","indexed":false},
 {"name":"rateAtTarget","type":"uint256","indexed":false}]}
]`

const preLiquidationABIJSON = `[
{"type":"event","name":"CreatePreLiquidation","inputs":[
 {"name":"preLiquidation","type":"address","indexed":true},{"name":"id","type":"bytes32","indexed":false},
 {"name":"preLiquidationParams","type":"tuple","indexed":false,"components":[
  {"name":"preLltv","type":"uint256"},{"name":"preLCF1","type":"uint256"},{"name":"preLCF2","type":"uint256"},
  {"name":"preLIF1","type":"uint256"},{"name":"preLIF2","type":"uint256"},{"name":"preLiquidationOracle","type":"address"}]}]},
{"type":"function","name":"preLiquidate","stateMutability":"nonpayable","inputs":[
 {"name":"borrower","type":"address"},{"name":"seizedAssets","type":"uint256"},
 {"name":"repaidShares","type":"uint256"},{"name":"data","type":"bytes"}],
 "outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}]}
]`

const vaultABIJSON = `[
{"type":"event","name":"SetWithdrawQueue","inputs":[
 {"name":"caller","type":"address","indexed":true},{"name":"newWithdrawQueue","type":"bytes32[]","indexed":false}]},
{"type":"function","name":"withdrawQueueLength","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"withdrawQueue","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"asset","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"previewRedeem","stateMutability":"view","inputs":[{"name":"shares","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[
 {"name":"shares","type":"uint256"},{"name":"receiver","type":"address"},{"name":"owner","type":"address"}],
 "outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[
 {"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"withdrawTo","stateMutability":"nonpayable","inputs":[
 {"name":"account","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const oracleABIJSON = `[
{"type":"function","name":"price","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
 {"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},
 {"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

const executorABIJSON = `[
{"type":"function","name":"exec_606BaXt","stateMutability":"payable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[]},
{"type":"function","name":"skim","stateMutability":"nonpayable","inputs":[
 {"name":"token","type":"address"},{"name":"recipient","type":"address"}],"outputs":[]}
]`

const multicallABIJSON = `[
{"type":"function","name":"aggregate3","stateMutability":"payable","inputs":[
 {"name":"calls","type":"tuple[]","components":[
  {"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],
 "outputs":[{"name":"returnData","type":"tuple[]","components":[
  {"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
]`

const uniswapV3ABIJSON = `[
{"type":"function","name":"getPool","stateMutability":"view","inputs":[
 {"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],
 "outputs":[{"name":"pool","type":"address"}]},
{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable","inputs":[
 {"name":"params","type":"tuple","components":[
  {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},
  {"name":"fee","type":"uint24"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
 "outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},
  {"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}]},
{"type":"function","name":"exactInputSingle","stateMutability":"payable","inputs":[
 {"name":"params","type":"tuple","components":[
  {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},
  {"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},
  {"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],
 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

// Parsed contract ABIs
var (
	MorphoABI         = mustParseABI(morphoABIJSON)
	IrmABI            = mustParseABI(irmABIJSON)
	PreLiquidationABI = mustParseABI(preLiquidationABIJSON)
	VaultABI          = mustParseABI(vaultABIJSON)
	ERC20ABI          = mustParseABI(erc20ABIJSON)
	OracleABI         = mustParseABI(oracleABIJSON)
	ExecutorABI       = mustParseABI(executorABIJSON)
	MulticallABI      = mustParseABI(multicallABIJSON)
	UniswapV3ABI      = mustParseABI(uniswapV3ABIJSON)
)

// Multicall3Address is the canonical Multicall3 deployment shared by every EVM chain
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// marketParamsTuple mirrors the MarketParams struct for abi packing and unpacking
type marketParamsTuple struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	Irm             common.Address
	Lltv            *big.Int
}

type preLiquidationParamsTuple struct {
	PreLltv              *big.Int
	PreLCF1              *big.Int
	PreLCF2              *big.Int
	PreLIF1              *big.Int
	PreLIF2              *big.Int
	PreLiquidationOracle common.Address
}

type quoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type call3Result struct {
	Success    bool
	ReturnData []byte
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// convertInto copies an abi-decoded value into a typed destination
func convertInto[T any](v interface{}, dst *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to convert %T into %T: %v", v, dst, r)
		}
	}()
	abi.ConvertType(v, dst)
	return nil
}
