package escrow

// puntoArenaABI covers the slice of the escrow contract the services
// consume: deposits, oracle settlement, refunds and the room-id views.
const puntoArenaABI = `[
  {
    "name": "createGame",
    "type": "function",
    "stateMutability": "payable",
    "inputs": [{"name": "roomId", "type": "string"}],
    "outputs": []
  },
  {
    "name": "joinGame",
    "type": "function",
    "stateMutability": "payable",
    "inputs": [{"name": "gameId", "type": "uint256"}],
    "outputs": []
  },
  {
    "name": "submitResult",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "gameId", "type": "uint256"},
      {"name": "winner", "type": "address"}
    ],
    "outputs": []
  },
  {
    "name": "claimRefund",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [{"name": "gameId", "type": "uint256"}],
    "outputs": []
  },
  {
    "name": "getGameByRoomId",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "roomId", "type": "string"}],
    "outputs": [
      {"name": "player1", "type": "address"},
      {"name": "player2", "type": "address"},
      {"name": "wager", "type": "uint256"},
      {"name": "state", "type": "uint8"},
      {"name": "winner", "type": "address"},
      {"name": "createdAt", "type": "uint256"},
      {"name": "roomId_", "type": "string"}
    ]
  },
  {
    "name": "roomIdToGameId",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "roomId", "type": "string"}],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "name": "canClaimRefund",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "gameId", "type": "uint256"}],
    "outputs": [{"name": "", "type": "bool"}]
  },
  {
    "name": "calculatePayout",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "wager", "type": "uint256"}],
    "outputs": [
      {"name": "payout", "type": "uint256"},
      {"name": "fee", "type": "uint256"}
    ]
  },
  {
    "name": "gameCounter",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  }
]`
