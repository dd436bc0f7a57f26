package arb

// DefaultTriangularRoutes is the static three-leg catalog. Each route is
// borrow -> A -> B -> borrow; legs are quoted with direct routes only so
// the composed transaction stays under the encoding-size limit.
func DefaultTriangularRoutes() []TriangularRoute {
	const (
		usdc50  = 50_000_000
		usdc100 = 100_000_000
		usdc200 = 200_000_000
	)

	return []TriangularRoute{
		// Native-hub blue chips.
		{Name: "USDC-SOL-JUP", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintJUP, BorrowAmount: usdc100},
		{Name: "USDC-SOL-RAY", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintRAY, BorrowAmount: usdc100},
		{Name: "USDC-SOL-ORCA", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintORCA, BorrowAmount: usdc100},
		{Name: "USDC-SOL-JTO", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintJTO, BorrowAmount: usdc100},
		{Name: "USDC-SOL-PYTH", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintPYTH, BorrowAmount: usdc100},
		{Name: "USDC-SOL-WBTC", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintWBTC, BorrowAmount: usdc200},
		{Name: "USDC-SOL-WETH", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintWETH, BorrowAmount: usdc200},

		// Liquid-staking token triangles.
		{Name: "USDC-SOL-MSOL", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintMSOL, BorrowAmount: usdc100},
		{Name: "USDC-SOL-JITOSOL", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintJitoSOL, BorrowAmount: usdc100},
		{Name: "USDC-SOL-BSOL", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintBSOL, BorrowAmount: usdc100},
		{Name: "USDC-MSOL-JITOSOL", TokenA: MintUSDC, TokenB: MintMSOL, TokenC: MintJitoSOL, BorrowAmount: usdc100},
		{Name: "USDC-JITOSOL-SOL", TokenA: MintUSDC, TokenB: MintJitoSOL, TokenC: MintWSOL, BorrowAmount: usdc100},

		// Meme triangles.
		{Name: "USDC-SOL-BONK", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintBONK, BorrowAmount: usdc50},
		{Name: "USDC-SOL-WIF", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintWIF, BorrowAmount: usdc50},
		{Name: "USDC-BONK-SOL", TokenA: MintUSDC, TokenB: MintBONK, TokenC: MintWSOL, BorrowAmount: usdc50},
		{Name: "USDC-WIF-SOL", TokenA: MintUSDC, TokenB: MintWIF, TokenC: MintWSOL, BorrowAmount: usdc50},
		{Name: "USDC-BONK-WIF", TokenA: MintUSDC, TokenB: MintBONK, TokenC: MintWIF, BorrowAmount: usdc50},

		// Stablecoin triangles.
		{Name: "USDC-USDT-SOL", TokenA: MintUSDC, TokenB: MintUSDT, TokenC: MintWSOL, BorrowAmount: usdc200},
		{Name: "USDC-SOL-USDT", TokenA: MintUSDC, TokenB: MintWSOL, TokenC: MintUSDT, BorrowAmount: usdc200},
		{Name: "USDC-USDT-JUP", TokenA: MintUSDC, TokenB: MintUSDT, TokenC: MintJUP, BorrowAmount: usdc100},
		{Name: "USDC-USDT-RAY", TokenA: MintUSDC, TokenB: MintUSDT, TokenC: MintRAY, BorrowAmount: usdc100},

		// Reverse-direction duplicates of the liquid routes.
		{Name: "USDC-JUP-SOL", TokenA: MintUSDC, TokenB: MintJUP, TokenC: MintWSOL, BorrowAmount: usdc100},
		{Name: "USDC-RAY-SOL", TokenA: MintUSDC, TokenB: MintRAY, TokenC: MintWSOL, BorrowAmount: usdc100},
		{Name: "USDC-ORCA-SOL", TokenA: MintUSDC, TokenB: MintORCA, TokenC: MintWSOL, BorrowAmount: usdc100},
		{Name: "USDC-JTO-SOL", TokenA: MintUSDC, TokenB: MintJTO, TokenC: MintWSOL, BorrowAmount: usdc100},
		{Name: "USDC-PYTH-SOL", TokenA: MintUSDC, TokenB: MintPYTH, TokenC: MintWSOL, BorrowAmount: usdc100},

		// No-hub triangles.
		{Name: "USDC-JUP-RAY", TokenA: MintUSDC, TokenB: MintJUP, TokenC: MintRAY, BorrowAmount: usdc50},
		{Name: "USDC-RAY-ORCA", TokenA: MintUSDC, TokenB: MintRAY, TokenC: MintORCA, BorrowAmount: usdc50},
		{Name: "USDC-JTO-PYTH", TokenA: MintUSDC, TokenB: MintJTO, TokenC: MintPYTH, BorrowAmount: usdc50},
		{Name: "USDC-WBTC-WETH", TokenA: MintUSDC, TokenB: MintWBTC, TokenC: MintWETH, BorrowAmount: usdc100},
	}
}
