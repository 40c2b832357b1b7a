package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// curvePoolABIJSON covers the read surface of the bonding-curve pool
// contract plus the phase transition event.
const curvePoolABIJSON = `[
{"inputs":[],"name":"reserveBalance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"spotPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"treasuryFees","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"crr","outputs":[{"internalType":"uint32","name":"","type":"uint32"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"paused","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getCurrentPhase","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"flatCurveThreshold","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"flatCurvePrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint8","name":"fromPhase","type":"uint8"},{"indexed":false,"internalType":"uint8","name":"toPhase","type":"uint8"},{"indexed":false,"internalType":"uint256","name":"reserveBalance","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"}],"name":"PhaseTransition","type":"event"}
]`

const phaseTransitionEvent = "PhaseTransition"

var curvePoolABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(curvePoolABIJSON))
	if err != nil {
		panic("failed to parse curve pool ABI: " + err.Error())
	}
	curvePoolABI = parsed
}
