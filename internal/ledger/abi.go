package ledger

// messengerABI is the subset of the messenger NFT contract the client calls.
const messengerABI = `[
  {"type":"function","name":"mintMessageNFT","stateMutability":"nonpayable",
   "inputs":[{"name":"recipients","type":"address[]"},{"name":"cid","type":"string"},{"name":"encKeys","type":"bytes[]"}],
   "outputs":[]},
  {"type":"function","name":"getMetadata","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"cid","type":"string"},{"name":"encKey","type":"bytes"}]},
  {"type":"function","name":"publishKey","stateMutability":"nonpayable",
   "inputs":[{"name":"key","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"getPublicKey","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"event","name":"MessageMinted","anonymous":false,
   "inputs":[{"name":"tokenId","type":"uint256","indexed":true},
             {"name":"sender","type":"address","indexed":true},
             {"name":"recipient","type":"address","indexed":true},
             {"name":"cid","type":"string","indexed":false}]}
]`

const (
	methodMint         = "mintMessageNFT"
	methodGetMetadata  = "getMetadata"
	methodPublishKey   = "publishKey"
	methodGetPublicKey = "getPublicKey"
	eventMessageMinted = "MessageMinted"
)
