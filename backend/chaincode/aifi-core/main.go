package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/rohitjadhav07/AIFI-Project/backend/chaincode/aifi-core/chaincode"
)

func main() {
	aifiChaincode, err := contractapi.NewChaincode(
		&chaincode.TokenBank{},
		&chaincode.RiskRegistry{},
		&chaincode.LendingLedger{},
		&chaincode.RemittanceLedger{},
		&chaincode.CommandRegistry{},
	)
	if err != nil {
		log.Panicf("Error creating AIFi chaincode: %v", err)
	}

	if err := aifiChaincode.Start(); err != nil {
		log.Panicf("Error starting AIFi chaincode: %v", err)
	}
}
