package persistence

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
)

type MongoOptions struct {
	URI        string
	Database   string
	Collection string
	// Transactions wraps InTx in a multi-document transaction. Needs a replica set.
	Transactions bool
	Timeout      time.Duration
	Logger       *logrus.Entry
}

func (o *MongoOptions) setDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// memberDocument uses the field names the family tree web app reads.
type memberDocument struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	Name       string               `bson:"name"`
	DOB        *time.Time           `bson:"dob"`
	Phone      string               `bson:"phone"`
	Occupation *string              `bson:"occupation"`
	Address    *string              `bson:"address"`
	Image      *string              `bson:"image"`
	Spouse     *primitive.ObjectID  `bson:"spouse"`
	Children   []primitive.ObjectID `bson:"children"`
}

type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       MongoOptions
}

// ConnectMongo opens a client and pings the primary. The caller must Close
// the repository.
func ConnectMongo(ctx context.Context, opts MongoOptions) (*MongoRepository, error) {
	opts.setDefaults()
	if opts.URI == "" {
		return nil, errors.New("mongo uri is empty")
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(opts.Timeout)
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}

	opts.Logger.WithFields(logrus.Fields{
		"database":   opts.Database,
		"collection": opts.Collection,
	}).Debug("connected to mongo")

	return &MongoRepository{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		opts:       opts,
	}, nil
}

func (r *MongoRepository) FindOne(ctx context.Context, f member.Filter) (member.Member, error) {
	var doc memberDocument
	if err := r.collection.FindOne(ctx, mongoFilter(f)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return member.Member{}, member.ErrNotFound
		}
		return member.Member{}, errors.Wrap(err, "find member")
	}
	return toDomainMember(doc), nil
}

func (r *MongoRepository) Insert(ctx context.Context, m member.Member) (member.ID, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	doc, err := toMemberDocument(m)
	if err != nil {
		return "", err
	}
	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", errors.Wrap(err, "insert member")
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", errors.Errorf("insert member: unexpected id type %T", res.InsertedID)
	}
	return member.ID(oid.Hex()), nil
}

func (r *MongoRepository) Update(ctx context.Context, id member.ID, p member.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	oid, err := toObjectID(id)
	if err != nil {
		return err
	}
	set, err := mongoSet(p)
	if err != nil {
		return err
	}
	res, err := r.collection.UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return errors.Wrapf(err, "update member %s", id)
	}
	if res.MatchedCount == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) AddChild(ctx context.Context, parent, child member.ID) error {
	parentOID, err := toObjectID(parent)
	if err != nil {
		return err
	}
	childOID, err := toObjectID(child)
	if err != nil {
		return err
	}
	res, err := r.collection.UpdateByID(ctx, parentOID, bson.D{
		{Key: "$addToSet", Value: bson.D{{Key: "children", Value: childOID}}},
	})
	if err != nil {
		return errors.Wrapf(err, "add child %s to %s", child, parent)
	}
	if res.MatchedCount == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.opts.Transactions {
		return fn(ctx)
	}
	sess, err := r.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "mongo ping")
	}
	return nil
}

func (r *MongoRepository) Inspect(ctx context.Context) (Status, error) {
	st := Status{
		Backend:    BackendMongo,
		Database:   r.opts.Database,
		Collection: r.opts.Collection,
	}
	dbs, err := r.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return st, errors.Wrap(err, "list databases")
	}
	st.DatabaseExists = slices.Contains(dbs, r.opts.Database)
	if !st.DatabaseExists {
		return st, nil
	}
	collections, err := r.client.Database(r.opts.Database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return st, errors.Wrap(err, "list collections")
	}
	st.CollectionExists = slices.Contains(collections, r.opts.Collection)
	if !st.CollectionExists {
		return st, nil
	}
	n, err := r.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return st, errors.Wrap(err, "count members")
	}
	st.Members = n
	return st, nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	if err := r.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "mongo disconnect")
	}
	return nil
}

func mongoFilter(f member.Filter) bson.D {
	d := bson.D{{Key: "name", Value: member.NormalizeName(f.Name)}}
	if f.DateOfBirth != nil {
		d = append(d, bson.E{Key: "dob", Value: member.DateOnlyUTC(*f.DateOfBirth)})
	} else {
		d = append(d, bson.E{Key: "dob", Value: nil})
	}
	if f.Bare {
		d = append(d,
			bson.E{Key: "address", Value: nil},
			bson.E{Key: "phone", Value: bson.D{{Key: "$in", Value: bson.A{nil, ""}}}},
			bson.E{Key: "occupation", Value: nil},
			bson.E{Key: "image", Value: nil},
			bson.E{Key: "spouse", Value: nil},
			bson.E{Key: "children", Value: bson.D{{Key: "$in", Value: bson.A{nil, bson.A{}}}}},
		)
	}
	return d
}

func mongoSet(p member.Patch) (bson.D, error) {
	var set bson.D
	if p.Address.Set {
		set = append(set, bson.E{Key: "address", Value: p.Address.Value})
	}
	if p.Phone.Set {
		phone := ""
		if p.Phone.Value != nil {
			phone = *p.Phone.Value
		}
		set = append(set, bson.E{Key: "phone", Value: phone})
	}
	if p.Occupation.Set {
		set = append(set, bson.E{Key: "occupation", Value: p.Occupation.Value})
	}
	if p.Image.Set {
		set = append(set, bson.E{Key: "image", Value: p.Image.Value})
	}
	if p.Spouse.Set {
		var spouse *primitive.ObjectID
		if p.Spouse.Value != nil {
			oid, err := toObjectID(*p.Spouse.Value)
			if err != nil {
				return nil, err
			}
			spouse = &oid
		}
		set = append(set, bson.E{Key: "spouse", Value: spouse})
	}
	if p.Children.Set {
		children := []primitive.ObjectID{}
		if p.Children.Value != nil {
			var err error
			if children, err = toObjectIDs(*p.Children.Value); err != nil {
				return nil, err
			}
		}
		set = append(set, bson.E{Key: "children", Value: children})
	}
	return set, nil
}

func toMemberDocument(m member.Member) (memberDocument, error) {
	doc := memberDocument{
		Name:       m.Name(),
		DOB:        m.DateOfBirth(),
		Phone:      m.Phone(),
		Occupation: m.Occupation(),
		Address:    m.Address(),
		Image:      m.Image(),
		Children:   []primitive.ObjectID{},
	}
	if !m.ID().IsZero() {
		oid, err := toObjectID(m.ID())
		if err != nil {
			return memberDocument{}, err
		}
		doc.ID = oid
	}
	if s := m.Spouse(); s != nil {
		oid, err := toObjectID(*s)
		if err != nil {
			return memberDocument{}, err
		}
		doc.Spouse = &oid
	}
	children, err := toObjectIDs(m.Children())
	if err != nil {
		return memberDocument{}, err
	}
	doc.Children = children
	return doc, nil
}

func toDomainMember(doc memberDocument) member.Member {
	opts := []member.Option{
		member.WithID(member.ID(doc.ID.Hex())),
		member.WithDateOfBirth(doc.DOB),
		member.WithPhone(doc.Phone),
		member.WithOccupation(doc.Occupation),
		member.WithAddress(doc.Address),
		member.WithImage(doc.Image),
	}
	if doc.Spouse != nil {
		spouse := member.ID(doc.Spouse.Hex())
		opts = append(opts, member.WithSpouse(&spouse))
	}
	children := make([]member.ID, 0, len(doc.Children))
	for _, c := range doc.Children {
		children = append(children, member.ID(c.Hex()))
	}
	opts = append(opts, member.WithChildren(children))
	return member.New(doc.Name, opts...)
}

func toObjectID(id member.ID) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return primitive.NilObjectID, errors.Wrapf(member.ErrInvalidID, "%q", id)
	}
	return oid, nil
}

func toObjectIDs(ids []member.ID) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := toObjectID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}
