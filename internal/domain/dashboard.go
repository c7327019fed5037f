package domain

import "math"

// Stats holds dashboard counters derived per request.
type Stats struct {
	TotalTransactions        int64   `json:"totalTransactions"`
	FraudulentTransactions   int64   `json:"fraudulentTransactions"`
	NonFraudTransactions     int64   `json:"nonFraudTransactions"`
	DoSAttacks               int64   `json:"dosAttacks"`
	AverageTransactionAmount float64 `json:"averageTransactionAmount"`
}

// ComputeStats derives the full stats record from raw counters.
// Params: total and fraud transaction counts, dos count, and summed non-fraud amount.
// Returns: stats with total>=fraud, non-negative counts, and a finite average.
func ComputeStats(total, fraud, dos int64, nonFraudAmount float64) Stats {
	if fraud < 0 {
		fraud = 0
	}
	if dos < 0 {
		dos = 0
	}
	if total < fraud {
		total = fraud
	}
	nonFraud := total - fraud

	var average float64
	if nonFraud > 0 && !math.IsNaN(nonFraudAmount) && !math.IsInf(nonFraudAmount, 0) {
		average = nonFraudAmount / float64(nonFraud)
	}
	if math.IsNaN(average) || math.IsInf(average, 0) {
		average = 0
	}

	return Stats{
		TotalTransactions:        total,
		FraudulentTransactions:   fraud,
		NonFraudTransactions:     nonFraud,
		DoSAttacks:               dos,
		AverageTransactionAmount: math.Round(average*100) / 100,
	}
}

// ChartPoint is one named slice of a pie series.
type ChartPoint struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// OverviewBar is one group of the overview bar chart.
type OverviewBar struct {
	Name       string `json:"name"`
	Total      *int64 `json:"total,omitempty"`
	Fraud      *int64 `json:"fraud,omitempty"`
	NonFraud   *int64 `json:"nonFraud,omitempty"`
	DoSAttacks *int64 `json:"dosAttacks,omitempty"`
}

// ChartData holds chart-ready series for the dashboard.
type ChartData struct {
	TransactionSplit []ChartPoint  `json:"transactionSplit"`
	Overview         []OverviewBar `json:"overview"`
}

// BuildChartData derives fraud/non-fraud split and overview bars from stats.
func BuildChartData(stats Stats) ChartData {
	total, fraud, nonFraud, dos := stats.TotalTransactions, stats.FraudulentTransactions, stats.NonFraudTransactions, stats.DoSAttacks
	return ChartData{
		TransactionSplit: []ChartPoint{
			{Name: "Fraud", Value: fraud},
			{Name: "Non-Fraud", Value: nonFraud},
		},
		Overview: []OverviewBar{
			{Name: "Transactions", Total: &total, Fraud: &fraud, NonFraud: &nonFraud},
			{Name: "Attacks", DoSAttacks: &dos},
		},
	}
}

// DashboardView is the aggregated read model served to the operator interface.
// Params: stats, recent alerts feed, chart series, serving tiers, and optional soft warning.
// Returns: response body of the dashboard endpoint.
type DashboardView struct {
	Stats        Stats     `json:"stats"`
	RecentAlerts []Alert   `json:"recentAlerts"`
	ChartData    ChartData `json:"chartData"`
	StatsSource  string    `json:"statsSource"`
	FeedSource   string    `json:"feedSource"`
	Warning      string    `json:"warning,omitempty"`
}
