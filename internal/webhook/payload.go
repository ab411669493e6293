package webhook

import "time"

// StoredItem is one successfully stored item in a success payload. The
// catalog id appears under product_id or service_id depending on type.
type StoredItem map[string]any

// SuccessPayload is the aggregate completion event for one task. TaskID is
// always the identifier the external backend submitted, never an internal
// stage id.
type SuccessPayload struct {
	TaskID         string    `json:"task_id"`
	CompanyID      string    `json:"company_id"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	StructuredData struct {
		Products []StoredItem `json:"products"`
		Services []StoredItem `json:"services"`
	} `json:"structured_data"`
	ExtractionMetadata struct {
		TotalProductsStored int    `json:"total_products_stored"`
		TotalServicesStored int    `json:"total_services_stored"`
		StorageStrategy     string `json:"storage_strategy"`
	} `json:"extraction_metadata"`
}

// NewSuccessPayload builds a completed event. Empty item lists are valid:
// they distinguish "nothing to store" from a pipeline failure.
func NewSuccessPayload(taskID, companyID, strategy string, products, services []StoredItem) SuccessPayload {
	if products == nil {
		products = []StoredItem{}
	}
	if services == nil {
		services = []StoredItem{}
	}

	p := SuccessPayload{
		TaskID:    taskID,
		CompanyID: companyID,
		Status:    "completed",
		Timestamp: time.Now().UTC(),
	}
	p.StructuredData.Products = products
	p.StructuredData.Services = services
	p.ExtractionMetadata.TotalProductsStored = len(products)
	p.ExtractionMetadata.TotalServicesStored = len(services)
	p.ExtractionMetadata.StorageStrategy = strategy
	return p
}

// FailurePayload is the terminal failure event for one task.
type FailurePayload struct {
	TaskID    string    `json:"task_id"`
	CompanyID string    `json:"company_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewFailurePayload builds a failed event.
func NewFailurePayload(taskID, companyID, errMsg string) FailurePayload {
	return FailurePayload{
		TaskID:    taskID,
		CompanyID: companyID,
		Status:    "failed",
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}
