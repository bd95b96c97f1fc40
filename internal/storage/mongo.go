package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sheild-gateway/internal/data"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	reportsCollection     = "reports"
	predictionsCollection = "predictions"
	machinesCollection    = "machines"
	alertsCollection      = "alerts"
	maintenanceCollection = "maintenance"
	sensorLogsCollection  = "sensor_logs"
)

// MongoConfig locates the document store.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// OpenMongo connects, pings the primary and ensures indexes.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*Stores, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	if err := ensureIndexes(connectCtx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Stores{
		Reports:     &MongoReportStore{coll: db.Collection(reportsCollection)},
		Predictions: &MongoPredictionStore{coll: db.Collection(predictionsCollection)},
		Machines:    &MongoMachineStore{coll: db.Collection(machinesCollection)},
		Alerts:      &MongoAlertStore{coll: db.Collection(alertsCollection)},
		Maintenance: &MongoMaintenanceStore{coll: db.Collection(maintenanceCollection)},
		SensorLogs:  &MongoSensorLogStore{coll: db.Collection(sensorLogsCollection)},
		close:       client.Disconnect,
	}, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(machinesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "machineId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("machines index: %w", err)
	}
	_, err = db.Collection(predictionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "machineId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("predictions index: %w", err)
	}
	byMachineTime := mongo.IndexModel{Keys: bson.D{{Key: "machineId", Value: 1}, {Key: "timestamp", Value: -1}}}
	if _, err := db.Collection(alertsCollection).Indexes().CreateOne(ctx, byMachineTime); err != nil {
		return fmt.Errorf("alerts index: %w", err)
	}
	if _, err := db.Collection(sensorLogsCollection).Indexes().CreateOne(ctx, byMachineTime); err != nil {
		return fmt.Errorf("sensor_logs index: %w", err)
	}
	_, err = db.Collection(maintenanceCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "machineId", Value: 1}, {Key: "dueDate", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("maintenance index: %w", err)
	}
	return nil
}

// reportDoc mirrors data.Report with a native ObjectID key.
type reportDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Period    string             `bson:"period"`
	StartDate time.Time          `bson:"startDate"`
	EndDate   time.Time          `bson:"endDate"`
	Contents  []string           `bson:"contents"`
	FileURL   string             `bson:"fileUrl,omitempty"`
	Meta      map[string]any     `bson:"meta,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func toReportDoc(r *data.Report) reportDoc {
	return reportDoc{
		Period:    r.Period,
		StartDate: r.StartDate,
		EndDate:   r.EndDate,
		Contents:  r.Contents,
		FileURL:   r.FileURL,
		Meta:      r.Meta,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (d reportDoc) report() data.Report {
	return data.Report{
		ID:        d.ID.Hex(),
		Period:    d.Period,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		Contents:  d.Contents,
		FileURL:   d.FileURL,
		Meta:      d.Meta,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type MongoReportStore struct {
	coll *mongo.Collection
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// A malformed id can't match any document.
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func (s *MongoReportStore) Create(ctx context.Context, r *data.Report) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	res, err := s.coll.InsertOne(ctx, toReportDoc(r))
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	r.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (s *MongoReportStore) Get(ctx context.Context, id string) (*data.Report, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc reportDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find report: %w", err)
	}
	r := doc.report()
	return &r, nil
}

func (s *MongoReportStore) List(ctx context.Context, f ReportFilter) ([]data.Report, error) {
	filter := bson.M{}
	if f.Period != "" {
		filter["period"] = f.Period
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find reports: %w", err)
	}
	var docs []reportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	out := make([]data.Report, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.report())
	}
	return out, nil
}

func (s *MongoReportStore) Update(ctx context.Context, r *data.Report) error {
	oid, err := objectID(r.ID)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"period":    r.Period,
		"startDate": r.StartDate,
		"endDate":   r.EndDate,
		"contents":  r.Contents,
		"fileUrl":   r.FileURL,
		"meta":      r.Meta,
		"updatedAt": r.UpdatedAt,
	}}
	var doc reportDoc
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("update report: %w", err)
	}
	*r = doc.report()
	return nil
}

func (s *MongoReportStore) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type MongoPredictionStore struct {
	coll *mongo.Collection
}

type predictionDoc struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty"`
	MachineID         string              `bson:"machineId"`
	Classification    data.Classification `bson:"classification"`
	RULHours          float64             `bson:"rulHours"`
	FeatureImportance map[string]float64  `bson:"featureImportance"`
	Input             data.FeatureSet     `bson:"input"`
	CreatedAt         time.Time           `bson:"createdAt"`
}

func (s *MongoPredictionStore) Create(ctx context.Context, p *data.Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.coll.InsertOne(ctx, predictionDoc{
		MachineID:         p.MachineID,
		Classification:    p.Classification,
		RULHours:          p.RULHours,
		FeatureImportance: p.FeatureImportance,
		Input:             p.Input,
		CreatedAt:         p.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	p.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (s *MongoPredictionStore) ListByMachine(ctx context.Context, machineID string, limit int) ([]data.Prediction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.coll.Find(ctx, bson.M{"machineId": machineID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find predictions: %w", err)
	}
	var docs []predictionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	out := make([]data.Prediction, 0, len(docs))
	for _, d := range docs {
		out = append(out, data.Prediction{
			ID:        d.ID.Hex(),
			MachineID: d.MachineID,
			Input:     d.Input,
			CreatedAt: d.CreatedAt,
			PredictionResult: data.PredictionResult{
				Classification:    d.Classification,
				RULHours:          d.RULHours,
				FeatureImportance: d.FeatureImportance,
			},
		})
	}
	return out, nil
}

type MongoMachineStore struct {
	coll *mongo.Collection
}

func (s *MongoMachineStore) Get(ctx context.Context, machineID string) (*data.Machine, error) {
	var m data.Machine
	if err := s.coll.FindOne(ctx, bson.M{"machineId": machineID}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find machine: %w", err)
	}
	return &m, nil
}

func (s *MongoMachineStore) List(ctx context.Context) ([]data.Machine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "machineId", Value: 1}}).SetLimit(200)
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find machines: %w", err)
	}
	var out []data.Machine
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode machines: %w", err)
	}
	return out, nil
}

func (s *MongoMachineStore) Upsert(ctx context.Context, m *data.Machine) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"machineId": m.MachineID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert machine: %w", err)
	}
	return nil
}

func (s *MongoMachineStore) RecordReading(ctx context.Context, machineID string, health float64, status string, at time.Time) (*data.Machine, error) {
	update := bson.M{"$set": bson.M{
		"healthScore": health,
		"status":      status,
		"lastSeenAt":  at,
	}}
	var m data.Machine
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"machineId": machineID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("record reading: %w", err)
	}
	return &m, nil
}

// alertDoc keys alerts by their own id and stores severity by name.
type alertDoc struct {
	ID             string     `bson:"_id"`
	MachineID      string     `bson:"machineId"`
	Severity       string     `bson:"severity"`
	Message        string     `bson:"message"`
	Status         string     `bson:"status"`
	Timestamp      time.Time  `bson:"timestamp"`
	Metric         string     `bson:"metric,omitempty"`
	Value          float64    `bson:"value,omitempty"`
	AcknowledgedBy string     `bson:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `bson:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `bson:"resolvedAt,omitempty"`
}

func toAlertDoc(a *data.Alert) alertDoc {
	return alertDoc{
		ID:             a.ID,
		MachineID:      a.MachineID,
		Severity:       a.Severity.String(),
		Message:        a.Message,
		Status:         a.Status,
		Timestamp:      a.Timestamp,
		Metric:         a.Metric,
		Value:          a.Value,
		AcknowledgedBy: a.AcknowledgedBy,
		AcknowledgedAt: a.AcknowledgedAt,
		ResolvedAt:     a.ResolvedAt,
	}
}

func (d alertDoc) alert() data.Alert {
	sev, _ := data.ParseSeverity(d.Severity)
	return data.Alert{
		ID:             d.ID,
		MachineID:      d.MachineID,
		Severity:       sev,
		Message:        d.Message,
		Status:         d.Status,
		Timestamp:      d.Timestamp,
		Metric:         d.Metric,
		Value:          d.Value,
		AcknowledgedBy: d.AcknowledgedBy,
		AcknowledgedAt: d.AcknowledgedAt,
		ResolvedAt:     d.ResolvedAt,
	}
}

type MongoAlertStore struct {
	coll *mongo.Collection
}

func (s *MongoAlertStore) Create(ctx context.Context, a *data.Alert) error {
	if a.ID == "" {
		a.ID = primitive.NewObjectID().Hex()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if _, err := s.coll.InsertOne(ctx, toAlertDoc(a)); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *MongoAlertStore) Get(ctx context.Context, id string) (*data.Alert, error) {
	var doc alertDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find alert: %w", err)
	}
	a := doc.alert()
	return &a, nil
}

func (s *MongoAlertStore) List(ctx context.Context, f AlertFilter) ([]data.Alert, error) {
	filter := bson.M{}
	if f.MachineID != "" {
		filter["machineId"] = f.MachineID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(listLimit(f.Limit)))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find alerts: %w", err)
	}
	var docs []alertDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	out := make([]data.Alert, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.alert())
	}
	return out, nil
}

func (s *MongoAlertStore) Update(ctx context.Context, a *data.Alert) error {
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": a.ID}, toAlertDoc(a))
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoAlertStore) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type maintenanceDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	MachineID   string             `bson:"machineId"`
	Task        string             `bson:"task"`
	DueDate     *time.Time         `bson:"dueDate,omitempty"`
	Status      string             `bson:"status"`
	Description string             `bson:"description,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d maintenanceDoc) task() data.MaintenanceTask {
	return data.MaintenanceTask{
		ID:          d.ID.Hex(),
		MachineID:   d.MachineID,
		Task:        d.Task,
		DueDate:     d.DueDate,
		Status:      d.Status,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type MongoMaintenanceStore struct {
	coll *mongo.Collection
}

func (s *MongoMaintenanceStore) Create(ctx context.Context, t *data.MaintenanceTask) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	res, err := s.coll.InsertOne(ctx, maintenanceDoc{
		MachineID:   t.MachineID,
		Task:        t.Task,
		DueDate:     t.DueDate,
		Status:      t.Status,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	t.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return nil
}

func (s *MongoMaintenanceStore) Get(ctx context.Context, id string) (*data.MaintenanceTask, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc maintenanceDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	t := doc.task()
	return &t, nil
}

func (s *MongoMaintenanceStore) List(ctx context.Context, f MaintenanceFilter) ([]data.MaintenanceTask, error) {
	filter := bson.M{}
	if f.MachineID != "" {
		filter["machineId"] = f.MachineID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "createdAt", Value: 1}}).
		SetLimit(int64(listLimit(f.Limit)))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []maintenanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	// Mongo sorts missing due dates first; move them to the end.
	dated := make([]data.MaintenanceTask, 0, len(docs))
	var undated []data.MaintenanceTask
	for _, d := range docs {
		if d.DueDate == nil {
			undated = append(undated, d.task())
			continue
		}
		dated = append(dated, d.task())
	}
	return append(dated, undated...), nil
}

func (s *MongoMaintenanceStore) Update(ctx context.Context, t *data.MaintenanceTask) error {
	oid, err := objectID(t.ID)
	if err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"machineId":   t.MachineID,
		"task":        t.Task,
		"dueDate":     t.DueDate,
		"status":      t.Status,
		"description": t.Description,
		"updatedAt":   t.UpdatedAt,
	}}
	var doc maintenanceDoc
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("update task: %w", err)
	}
	*t = doc.task()
	return nil
}

func (s *MongoMaintenanceStore) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type sensorLogDoc struct {
	MachineID   string    `bson:"machineId"`
	Timestamp   time.Time `bson:"timestamp"`
	Vibration   float64   `bson:"vibration"`
	Temperature float64   `bson:"temperature"`
	Current     float64   `bson:"current"`
	HealthScore float64   `bson:"healthScore"`
	Source      string    `bson:"source,omitempty"`
}

type MongoSensorLogStore struct {
	coll *mongo.Collection
}

func (s *MongoSensorLogStore) Append(ctx context.Context, r *data.SensorReading) error {
	_, err := s.coll.InsertOne(ctx, sensorLogDoc(*r))
	if err != nil {
		return fmt.Errorf("insert sensor log: %w", err)
	}
	return nil
}

func (s *MongoSensorLogStore) Query(ctx context.Context, machineID string, f SensorLogFilter) ([]data.SensorReading, error) {
	filter := bson.M{"machineId": machineID}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts := bson.M{}
		if !f.From.IsZero() {
			ts["$gte"] = f.From
		}
		if !f.To.IsZero() {
			ts["$lte"] = f.To
		}
		filter["timestamp"] = ts
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(listLimit(f.Limit)))
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find sensor logs: %w", err)
	}
	var docs []sensorLogDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sensor logs: %w", err)
	}
	out := make([]data.SensorReading, 0, len(docs))
	for _, d := range docs {
		out = append(out, data.SensorReading(d))
	}
	return out, nil
}
